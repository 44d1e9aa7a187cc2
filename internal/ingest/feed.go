// Package ingest loads candidate content and mentions from feed files.
//
// A feed stands in for the timeline, search and mention endpoints of a
// social platform. Feeds are YAML; JSON is accepted as a YAML subset.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chelinho139/glitchbot/internal/model"
)

// Feed is the on-disk batch format.
type Feed struct {
	Items    []Item    `yaml:"items" json:"items"`
	Mentions []Mention `yaml:"mentions" json:"mentions"`
}

// Item is a content item as it appears in a feed.
type Item struct {
	ID         string           `yaml:"id" json:"id"`
	Text       string           `yaml:"text" json:"text"`
	Topic      string           `yaml:"topic" json:"topic"`
	Author     string           `yaml:"author" json:"author"`
	Metrics    map[string]int64 `yaml:"metrics" json:"metrics"`
	ObservedAt time.Time        `yaml:"observed_at" json:"observed_at"`
}

// Mention is an inbound mention, optionally with the post it refers to.
type Mention struct {
	ID       string `yaml:"id" json:"id"`
	Author   string `yaml:"author" json:"author"`
	Text     string `yaml:"text" json:"text"`
	Original *Item  `yaml:"original" json:"original"`

	// FetchError makes fetching the original fail with this message.
	FetchError string `yaml:"fetch_error" json:"fetch_error"`
}

// Load reads and validates a feed file.
func Load(path string) (Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Feed{}, fmt.Errorf("read feed: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates feed bytes.
func Parse(data []byte) (Feed, error) {
	var f Feed
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Feed{}, fmt.Errorf("parse feed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Feed{}, err
	}
	return f, nil
}

// Validate checks that every item and mention carries an id.
func (f Feed) Validate() error {
	var errs []error
	for i, it := range f.Items {
		if it.ID == "" {
			errs = append(errs, fmt.Errorf("items[%d]: id is required", i))
		}
	}
	for i, m := range f.Mentions {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("mentions[%d]: id is required", i))
		}
		if m.Original != nil && m.Original.ID == "" {
			errs = append(errs, fmt.Errorf("mentions[%d].original: id is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid feed: %w", errors.Join(errs...))
	}
	return nil
}

// Content converts the item to a ContentItem. An empty topic falls back to
// defaultTopic.
func (it Item) Content(defaultTopic string) model.ContentItem {
	topic := it.Topic
	if topic == "" {
		topic = defaultTopic
	}
	var metrics model.Metrics
	if len(it.Metrics) > 0 {
		metrics = make(model.Metrics, len(it.Metrics))
		for k, v := range it.Metrics {
			metrics[k] = v
		}
	}
	return model.ContentItem{
		ExternalID:        it.ID,
		Text:              it.Text,
		Topic:             topic,
		AuthorID:          it.Author,
		EngagementMetrics: metrics,
		ObservedAt:        it.ObservedAt,
	}
}

// ToMentions returns the feed's mentions in file order.
func (f Feed) ToMentions() []model.Mention {
	out := make([]model.Mention, 0, len(f.Mentions))
	for _, m := range f.Mentions {
		out = append(out, model.Mention{ID: m.ID, Author: m.Author, Text: m.Text})
	}
	return out
}

// ContentSink receives ingested content. Implemented by *store.Store.
type ContentSink interface {
	RecordContent(ctx context.Context, item model.ContentItem) (int64, error)
}

// Ingest upserts every feed item into sink and returns how many were stored.
// Stops at the first error.
func Ingest(ctx context.Context, sink ContentSink, f Feed, defaultTopic string) (int, error) {
	n := 0
	for _, it := range f.Items {
		if _, err := sink.RecordContent(ctx, it.Content(defaultTopic)); err != nil {
			return n, fmt.Errorf("ingest item %s: %w", it.ID, err)
		}
		n++
	}
	return n, nil
}

// Fetcher serves the originals referenced by feed mentions.
//
// Thread-safety: Fetcher is safe for concurrent use via internal mutex.
type Fetcher struct {
	mu       sync.RWMutex
	mentions map[string]Mention
}

// NewFetcher indexes the mentions of the given feeds. Later feeds win.
func NewFetcher(feeds ...Feed) *Fetcher {
	f := &Fetcher{mentions: make(map[string]Mention)}
	for _, feed := range feeds {
		f.Add(feed)
	}
	return f
}

// Add indexes the mentions of another feed.
func (f *Fetcher) Add(feed Feed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range feed.Mentions {
		f.mentions[m.ID] = m
	}
}

// FetchOriginal returns the post a mention refers to, or nil when the
// mention stands alone or is not in any feed.
func (f *Fetcher) FetchOriginal(ctx context.Context, mentionID string) (*model.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	m, ok := f.mentions[mentionID]
	f.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if m.FetchError != "" {
		return nil, fmt.Errorf("fetch original for %s: %s", mentionID, m.FetchError)
	}
	if m.Original == nil {
		return nil, nil
	}
	item := m.Original.Content("")
	return &item, nil
}
