// Package model provides the entity types shared by the curation engine.
//
// This package contains type definitions and small value helpers only.
// Other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - ExternalID is the identity of observed content, the row ID is internal
//   - Engagement counters are int64 keyed by their platform name
//   - All JSON tags use snake_case
//   - Timestamps are UTC
package model
