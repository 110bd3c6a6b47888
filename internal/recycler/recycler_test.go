package recycler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fioncat/csync-go/internal/store"
	"github.com/fioncat/csync-go/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecyclerRemovesExpiredAndEmitsEvent(t *testing.T) {
	st := memory.New()
	now := time.Now()
	past := now.Add(-time.Hour)
	_, err := st.Create(context.Background(), store.Blob{}, "", "", now, &past)
	require.NoError(t, err)

	events := make(chan Event, 1)
	r := New(testLogger(), st, Config{Interval: 10 * time.Millisecond}, events)
	defer r.Stop()

	select {
	case ev := <-events:
		assert.Equal(t, 1, ev.Removed)
		assert.Equal(t, uint64(1), ev.Revision)
	case <-time.After(time.Second):
		t.Fatal("expected a recycler event")
	}
}

func TestRevisionAdvancesEvenWithNothingToRemove(t *testing.T) {
	st := memory.New()
	r := New(testLogger(), st, Config{Interval: 10 * time.Millisecond}, nil)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return r.Revision() >= 2
	}, time.Second, 5*time.Millisecond)
}
