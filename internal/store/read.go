package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chelinho139/glitchbot/internal/model"
)

// defaultKnowledgeLimit caps KnowledgeForTopic when no limit is given.
const defaultKnowledgeLimit = 10

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// HasResponded reports whether a reply has been recorded for the mention.
func (s *Store) HasResponded(ctx context.Context, mentionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM mention_responses WHERE mention_id = ?)
	`, mentionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has responded: %w", err)
	}
	return exists, nil
}

// Response returns the reply history for a mention.
// Returns ErrNotFound if none was recorded.
func (s *Store) Response(ctx context.Context, mentionID string) (model.ResponseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mention_id, mention_text, response_text, response_id, context_used, created_at
		FROM mention_responses
		WHERE mention_id = ?
	`, mentionID)

	rec, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ResponseRecord{}, fmt.Errorf("response %q: %w", mentionID, ErrNotFound)
	}
	if err != nil {
		return model.ResponseRecord{}, fmt.Errorf("read response: %w", err)
	}
	return rec, nil
}

// HasPublishedExternalID reports whether any generated output already used
// the external id: either the output text contains it, or the output was
// linked to it as a source. An empty id never matches.
func (s *Store) HasPublishedExternalID(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM output_sources WHERE source_id = ?)
		    OR EXISTS (SELECT 1 FROM generated_outputs WHERE instr(output_text, ?) > 0)
	`, externalID, externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has published external id: %w", err)
	}
	return exists, nil
}

// RecentOutputsWithinWindow returns the texts of outputs created within the
// last `days` days, newest first.
func (s *Store) RecentOutputsWithinWindow(ctx context.Context, days int) ([]string, error) {
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour).UTC().UnixMilli()

	rows, err := s.db.QueryContext(ctx, `
		SELECT output_text FROM generated_outputs
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query recent outputs: %w", err)
	}
	defer rows.Close()

	texts := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan output text: %w", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent outputs: %w", err)
	}
	return texts, nil
}

// RecentContent returns up to limit content items, most recently observed first.
func (s *Store) RecentContent(ctx context.Context, limit int) ([]model.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, content, topic, author_id, engagement_metrics, observed_at, processed
		FROM monitored_content
		ORDER BY observed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent content: %w", err)
	}
	defer rows.Close()

	items := []model.ContentItem{}
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent content: %w", err)
	}
	return items, nil
}

// Content returns a single content item by external id.
// Returns ErrNotFound if it was never observed.
func (s *Store) Content(ctx context.Context, externalID string) (model.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, content, topic, author_id, engagement_metrics, observed_at, processed
		FROM monitored_content
		WHERE external_id = ?
	`, externalID)

	item, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ContentItem{}, fmt.Errorf("content %q: %w", externalID, ErrNotFound)
	}
	return item, err
}

// EngagementSnapshot recomputes the aggregate counters.
func (s *Store) EngagementSnapshot(ctx context.Context) (model.EngagementSnapshot, error) {
	var snap model.EngagementSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM monitored_content),
			(SELECT COUNT(*) FROM generated_outputs),
			(SELECT COUNT(*) FROM generated_outputs WHERE posted = 1),
			(SELECT COUNT(*) FROM mention_responses)
	`).Scan(
		&snap.TotalMonitoredContent,
		&snap.TotalThreadsGenerated,
		&snap.TotalThreadsPosted,
		&snap.TotalMentionResponses,
	)
	if err != nil {
		return model.EngagementSnapshot{}, fmt.Errorf("engagement snapshot: %w", err)
	}
	return snap, nil
}

// GeneratedOutput returns a single output with its source links.
// Returns ErrNotFound for an unknown id.
func (s *Store) GeneratedOutput(ctx context.Context, id int64) (model.GeneratedOutput, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, output_text, topic, posted, published_id, publish_metrics, posted_at, created_at
		FROM generated_outputs
		WHERE id = ?
	`, id)

	out, err := scanOutput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GeneratedOutput{}, fmt.Errorf("output %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.GeneratedOutput{}, err
	}

	out.SourceContentIDs, err = s.outputSources(ctx, id)
	if err != nil {
		return model.GeneratedOutput{}, err
	}
	return out, nil
}

// RecentOutputs returns up to limit outputs, newest first.
func (s *Store) RecentOutputs(ctx context.Context, limit int) ([]model.GeneratedOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, output_text, topic, posted, published_id, publish_metrics, posted_at, created_at
		FROM generated_outputs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}

	outputs := []model.GeneratedOutput{}
	for rows.Next() {
		out, err := scanOutput(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate outputs: %w", err)
	}
	// Release the single connection before the per-output link queries.
	rows.Close()

	for i := range outputs {
		outputs[i].SourceContentIDs, err = s.outputSources(ctx, outputs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

// PostedOutputsSince returns the posting times of outputs published at or
// after since, oldest first.
func (s *Store) PostedOutputsSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT posted_at FROM generated_outputs
		WHERE posted = 1 AND posted_at >= ?
		ORDER BY posted_at ASC, id ASC
	`, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query posted outputs: %w", err)
	}
	defer rows.Close()

	times := []time.Time{}
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("scan posted_at: %w", err)
		}
		times = append(times, fromMillis(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posted outputs: %w", err)
	}
	return times, nil
}

// RecentResponses returns up to limit reply records, newest first.
func (s *Store) RecentResponses(ctx context.Context, limit int) ([]model.ResponseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mention_id, mention_text, response_text, response_id, context_used, created_at
		FROM mention_responses
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	records := []model.ResponseRecord{}
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return records, nil
}

// KnowledgeForTopic returns the facts for a topic ordered by confidence,
// then recency. A non-positive limit uses the default of 10.
func (s *Store) KnowledgeForTopic(ctx context.Context, topic string, limit int) ([]model.KnowledgeFact, error) {
	if limit <= 0 {
		limit = defaultKnowledgeLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, concept, description, source_content_ids, confidence_score, last_updated
		FROM knowledge_base
		WHERE topic = ?
		ORDER BY confidence_score DESC, last_updated DESC, id ASC
		LIMIT ?
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}
	defer rows.Close()

	facts := []model.KnowledgeFact{}
	for rows.Next() {
		var (
			fact    model.KnowledgeFact
			sources sql.NullString
			updated int64
		)
		if err := rows.Scan(
			&fact.ID,
			&fact.Topic,
			&fact.Concept,
			&fact.Description,
			&sources,
			&fact.ConfidenceScore,
			&updated,
		); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		fact.SourceContentIDs = unmarshalIDs(sources)
		fact.LastUpdated = fromMillis(updated)
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge: %w", err)
	}
	return facts, nil
}

// RecentMetrics returns up to limit metrics log rows, newest first.
func (s *Store) RecentMetrics(ctx context.Context, limit int) ([]model.MetricEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metric_name, metric_value, recorded_at
		FROM agent_metrics
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	entries := []model.MetricEntry{}
	for rows.Next() {
		var (
			entry    model.MetricEntry
			recorded int64
		)
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Value, &recorded); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		entry.RecordedAt = fromMillis(recorded)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return entries, nil
}

// outputSources returns the ordered source ids linked to an output.
func (s *Store) outputSources(ctx context.Context, outputID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id FROM output_sources
		WHERE output_id = ?
		ORDER BY position ASC
	`, outputID)
	if err != nil {
		return nil, fmt.Errorf("query output sources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan output source: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output sources: %w", err)
	}
	return ids, nil
}

func scanContent(row rowScanner) (model.ContentItem, error) {
	var (
		item     model.ContentItem
		metrics  sql.NullString
		observed int64
	)
	if err := row.Scan(
		&item.ID,
		&item.ExternalID,
		&item.Text,
		&item.Topic,
		&item.AuthorID,
		&metrics,
		&observed,
		&item.Processed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ContentItem{}, err
		}
		return model.ContentItem{}, fmt.Errorf("scan content: %w", err)
	}
	item.EngagementMetrics = model.ParseMetrics(metrics.String)
	item.ObservedAt = fromMillis(observed)
	return item, nil
}

func scanOutput(row rowScanner) (model.GeneratedOutput, error) {
	var (
		out      model.GeneratedOutput
		metrics  sql.NullString
		postedAt sql.NullInt64
		created  int64
	)
	if err := row.Scan(
		&out.ID,
		&out.Text,
		&out.Topic,
		&out.Posted,
		&out.PublishedID,
		&metrics,
		&postedAt,
		&created,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.GeneratedOutput{}, err
		}
		return model.GeneratedOutput{}, fmt.Errorf("scan output: %w", err)
	}
	out.PublishMetrics = model.ParseMetrics(metrics.String)
	if postedAt.Valid {
		t := fromMillis(postedAt.Int64)
		out.PostedAt = &t
	}
	out.CreatedAt = fromMillis(created)
	return out, nil
}

func scanResponse(row rowScanner) (model.ResponseRecord, error) {
	var (
		rec     model.ResponseRecord
		created int64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.MentionID,
		&rec.MentionText,
		&rec.ResponseText,
		&rec.ResponseID,
		&rec.ContextUsed,
		&created,
	); err != nil {
		return model.ResponseRecord{}, err
	}
	rec.CreatedAt = fromMillis(created)
	return rec, nil
}
