package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chelinho139/glitchbot/internal/model"
)

// marshalMetrics converts engagement metrics to JSON TEXT for storage.
// Empty metrics are stored as NULL.
func marshalMetrics(m model.Metrics) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := encodeJSON(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal metrics: %w", err)
	}
	return sql.NullString{String: data, Valid: true}, nil
}

// marshalIDs converts an ordered id list to JSON TEXT. Empty lists are NULL.
func marshalIDs(ids []string) (sql.NullString, error) {
	if len(ids) == 0 {
		return sql.NullString{}, nil
	}
	data, err := encodeJSON(ids)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal ids: %w", err)
	}
	return sql.NullString{String: data, Valid: true}, nil
}

// unmarshalIDs parses a JSON id list. Unparseable input yields nil.
func unmarshalIDs(data sql.NullString) []string {
	if !data.Valid || data.String == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data.String), &ids); err != nil {
		return nil
	}
	return ids
}

// encodeJSON marshals with HTML escaping disabled so stored text stays readable.
// Go's json encoder sorts map keys, keeping stored metrics deterministic.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// fromMillis converts a stored unix-millisecond timestamp to UTC time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
