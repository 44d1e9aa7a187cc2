package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chelinho139/glitchbot/internal/model"
)

// RecordContent upserts a content item keyed by its external id.
// Re-observing an id overwrites every field (last write wins) but keeps the
// internal row id, which is returned. A zero ObservedAt is stamped with the
// store clock.
func (s *Store) RecordContent(ctx context.Context, item model.ContentItem) (int64, error) {
	if item.ExternalID == "" {
		return 0, fmt.Errorf("record content: external id is required")
	}

	metricsJSON, err := marshalMetrics(item.EngagementMetrics)
	if err != nil {
		return 0, fmt.Errorf("record content: %w", err)
	}

	now := s.nowMillis()
	observed := now
	if !item.ObservedAt.IsZero() {
		observed = item.ObservedAt.UTC().UnixMilli()
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO monitored_content
		(external_id, content, topic, author_id, engagement_metrics, observed_at, created_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			content = excluded.content,
			topic = excluded.topic,
			author_id = excluded.author_id,
			engagement_metrics = excluded.engagement_metrics,
			observed_at = excluded.observed_at,
			created_at = excluded.created_at,
			processed = excluded.processed
		RETURNING id
	`,
		item.ExternalID,
		item.Text,
		item.Topic,
		item.AuthorID,
		metricsJSON,
		observed,
		now,
		item.Processed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record content: %w", err)
	}

	return id, nil
}

// MarkProcessed flags a content item as used.
// Unknown ids are a no-op.
func (s *Store) MarkProcessed(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE monitored_content SET processed = 1 WHERE external_id = ?
	`, externalID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// RecordGeneratedOutput inserts a new unposted output together with its
// ordered source links, and marks the linked content items processed.
// All writes commit atomically.
func (s *Store) RecordGeneratedOutput(ctx context.Context, text, topic string, sourceIDs []string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO generated_outputs (output_text, topic, posted, created_at)
			VALUES (?, ?, 0, ?)
		`, text, topic, s.nowMillis())
		if err != nil {
			return err
		}

		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		for pos, src := range sourceIDs {
			if src == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO output_sources (output_id, position, source_id)
				VALUES (?, ?, ?)
			`, id, pos, src); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE monitored_content SET processed = 1 WHERE external_id = ?
			`, src); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record generated output: %w", err)
	}
	return id, nil
}

// MarkPosted records that an output was published.
//
// The first call flips posted, stamps posted_at and stores the published id
// and metrics, returning true. Later calls leave the row untouched and return
// false. Returns ErrNotFound for an unknown output id.
func (s *Store) MarkPosted(ctx context.Context, outputID int64, publishedID string, metrics model.Metrics) (bool, error) {
	metricsJSON, err := marshalMetrics(metrics)
	if err != nil {
		return false, fmt.Errorf("mark posted: %w", err)
	}

	var changed bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var posted bool
		err := tx.QueryRowContext(ctx, `
			SELECT posted FROM generated_outputs WHERE id = ?
		`, outputID).Scan(&posted)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("output %d: %w", outputID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if posted {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE generated_outputs
			SET posted = 1, published_id = ?, publish_metrics = ?, posted_at = ?
			WHERE id = ?
		`, publishedID, metricsJSON, s.nowMillis(), outputID); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark posted: %w", err)
	}
	return changed, nil
}

// RecordResponse upserts the reply history for a mention.
func (s *Store) RecordResponse(ctx context.Context, rec model.ResponseRecord) error {
	if rec.MentionID == "" {
		return fmt.Errorf("record response: mention id is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mention_responses
		(mention_id, mention_text, response_text, response_id, context_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(mention_id) DO UPDATE SET
			mention_text = excluded.mention_text,
			response_text = excluded.response_text,
			response_id = excluded.response_id,
			context_used = excluded.context_used,
			created_at = excluded.created_at
	`,
		rec.MentionID,
		rec.MentionText,
		rec.ResponseText,
		rec.ResponseID,
		rec.ContextUsed,
		s.nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("record response: %w", err)
	}
	return nil
}

// UpsertKnowledge stores a fact keyed by (topic, concept) and returns its id.
// An existing fact gets the new description, sources and confidence.
// A zero confidence is stored as model.DefaultConfidence.
func (s *Store) UpsertKnowledge(ctx context.Context, fact model.KnowledgeFact) (int64, error) {
	if fact.Topic == "" || fact.Concept == "" {
		return 0, fmt.Errorf("upsert knowledge: topic and concept are required")
	}

	sourcesJSON, err := marshalIDs(fact.SourceContentIDs)
	if err != nil {
		return 0, fmt.Errorf("upsert knowledge: %w", err)
	}

	confidence := fact.ConfidenceScore
	if confidence == 0 {
		confidence = model.DefaultConfidence
	}
	now := s.nowMillis()

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO knowledge_base
		(topic, concept, description, source_content_ids, confidence_score, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic, concept) DO UPDATE SET
			description = excluded.description,
			source_content_ids = excluded.source_content_ids,
			confidence_score = excluded.confidence_score,
			last_updated = excluded.last_updated
		RETURNING id
	`,
		fact.Topic,
		fact.Concept,
		fact.Description,
		sourcesJSON,
		confidence,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert knowledge: %w", err)
	}
	return id, nil
}

// RecordMetric appends a row to the metrics log.
func (s *Store) RecordMetric(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_metrics (metric_name, metric_value, recorded_at)
		VALUES (?, ?, ?)
	`, name, value, s.nowMillis())
	if err != nil {
		return fmt.Errorf("record metric: %w", err)
	}
	return nil
}

// Cleanup deletes content, outputs, responses and metrics created before
// now-olderThan. Knowledge facts are kept. Returns the number of rows removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("cleanup: retention must be positive, got %s", olderThan)
	}
	cutoff := s.now().Add(-olderThan).UTC().UnixMilli()

	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Links go first so the delete does not depend on foreign_keys being on.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM output_sources
			WHERE output_id IN (SELECT id FROM generated_outputs WHERE created_at < ?)
		`, cutoff); err != nil {
			return err
		}

		stmts := []string{
			`DELETE FROM monitored_content WHERE created_at < ?`,
			`DELETE FROM generated_outputs WHERE created_at < ?`,
			`DELETE FROM mention_responses WHERE created_at < ?`,
			`DELETE FROM agent_metrics WHERE recorded_at < ?`,
		}
		for _, stmt := range stmts {
			res, err := tx.ExecContext(ctx, stmt, cutoff)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return removed, nil
}
