// Package store provides SQLite-backed durable storage for the curation engine.
//
// The store keeps five logical tables:
//   - monitored_content: observed content items, unique by external_id
//   - generated_outputs: materialized candidate posts (+ output_sources links)
//   - mention_responses: reply history, unique by mention_id
//   - knowledge_base: topic-scoped facts, unique by (topic, concept)
//   - agent_metrics: free-form metrics log
//
// # Critical Patterns
//
// Single writer: the connection pool is capped at one connection, and every
// multi-statement mutation runs in one transaction. A failed operation leaves
// no partial rows behind.
//
// Upsert by identity: re-observing content with the same external_id
// overwrites the row (last write wins) and keeps its internal id. Responses
// upsert by mention_id.
//
// Time windows: every table carries a creation timestamp stored as unix
// milliseconds (UTC). All windowed queries compare against it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
