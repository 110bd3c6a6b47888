// Package synctest holds test fixtures for code built on
// internal/syncengine: an in-memory syncengine.Remote double and a
// deterministic clock. Only this package's own tests import it;
// internal/syncengine's tests keep their own unexported remote double.
// The fixtures mirror the
// teacher's "mock for now" pattern (cmd/server/main.go's commented-out
// "Mock DB for now" wallet construction, internal/reputation's tests
// against a manager built with a nil backend) rather than a generated
// mock or an external mocking library.
package synctest

import (
	"context"
	"sync"
	"time"

	"github.com/fioncat/csync-go/internal/digest"
	"github.com/fioncat/csync-go/internal/syncengine"
)

// FakeRemote is an in-memory syncengine.Remote double keyed by Kind,
// safe for concurrent use so it can sit behind both a publisher and a
// subscriber goroutine in tests that exercise Engine.Run directly.
type FakeRemote struct {
	mu     sync.Mutex
	digest map[syncengine.Kind]string
	data   map[syncengine.Kind][]byte
}

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		digest: make(map[syncengine.Kind]string),
		data:   make(map[syncengine.Kind][]byte),
	}
}

func (r *FakeRemote) ReadDigest(ctx context.Context, kind syncengine.Kind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.digest[kind], nil
}

func (r *FakeRemote) Read(ctx context.Context, kind syncengine.Kind) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.data[kind]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (r *FakeRemote) Write(ctx context.Context, kind syncengine.Kind, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[kind] = data
	r.digest[kind] = digest.Sum(data)
	return nil
}

// Set seeds kind's content directly, as if some other device had already
// pushed it, without going through Write.
func (r *FakeRemote) Set(kind syncengine.Kind, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[kind] = data
	r.digest[kind] = digest.Sum(data)
}

// Clock is a minimal injectable time source for tests that want to
// assert on timestamps (store.Metadata.UpdatedAt, recycler.Event.At)
// without depending on wall-clock timing.
type Clock interface {
	Now() time.Time
}

// RealClock delegates to time.Now; the zero value is ready to use.
// Factory and Engine take no Clock and call time.Now directly.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FakeClock is a manually advanced Clock for deterministic tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
