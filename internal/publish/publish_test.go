package publish

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietDryRun(opts ...DryRunOption) *DryRun {
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewDryRun(opts...)
}

func TestDryRun_RecordsPosts(t *testing.T) {
	n := 0
	d := quietDryRun(WithIDs(func() string {
		n++
		return []string{"p1", "p2"}[n-1]
	}))
	ctx := context.Background()

	id, err := d.Publish(ctx, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	id, err = d.Publish(ctx, "reply", "m1")
	require.NoError(t, err)
	assert.Equal(t, "p2", id)

	assert.Equal(t, []Post{
		{ID: "p1", Text: "hello"},
		{ID: "p2", Text: "reply", InReplyTo: "m1"},
	}, d.Posts())
}

func TestDryRun_DefaultIDsAreUUIDs(t *testing.T) {
	d := quietDryRun()
	id, err := d.Publish(context.Background(), "hello", "")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}

func TestDryRun_RejectsTooLong(t *testing.T) {
	d := quietDryRun()
	_, err := d.Publish(context.Background(), strings.Repeat("a", MaxPostRunes+1), "")
	assert.ErrorIs(t, err, ErrTooLong)
	assert.Empty(t, d.Posts())

	_, err = d.Publish(context.Background(), strings.Repeat("é", MaxPostRunes), "")
	assert.NoError(t, err, "limit counts characters, not bytes")
}

func TestDryRun_CancelledContext(t *testing.T) {
	d := quietDryRun()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Publish(ctx, "hello", "")
	assert.ErrorIs(t, err, context.Canceled)
}
