package channel

import (
	"context"
	"testing"

	"github.com/fioncat/csync-go/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textFrame(text string) *wire.Frame {
	return wire.NewPush(&wire.DataFrame{Kind: wire.PayloadText, Digest: "d", Text: text})
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx)
}

func TestLateJoinDelivery(t *testing.T) {
	m := newManager(t)
	m.Register("laptop")
	m.Push("laptop", textFrame("hello"))

	// subscriber joins after the post and still gets it on first pull.
	got := m.Pull("watcher", []string{"laptop"})
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Data.Text)

	// second pull with no new post sees nothing.
	assert.Nil(t, m.Pull("watcher", []string{"laptop"}))
}

func TestPullClearsDirtyFlagOnce(t *testing.T) {
	m := newManager(t)
	m.Register("laptop")
	m.Push("laptop", textFrame("hello"))

	require.NotNil(t, m.Pull("watcher", []string{"laptop"}))
	assert.Nil(t, m.Pull("watcher", []string{"laptop"}))

	m.Push("laptop", textFrame("world"))
	got := m.Pull("watcher", []string{"laptop"})
	require.NotNil(t, got)
	assert.Equal(t, "world", got.Data.Text)
}

func TestPullOnUnregisteredDeviceIsNil(t *testing.T) {
	m := newManager(t)
	assert.Nil(t, m.Pull("watcher", []string{"ghost"}))
}

// TestTwoSubscribersPostOnOneDevice mirrors scenario S6: two subscribers
// watching ["a","b"], a post lands only on "b". Both receive it, and both
// remain clean on "a" since it was never posted to.
func TestTwoSubscribersPostOnOneDevice(t *testing.T) {
	m := newManager(t)
	m.Register("a")
	m.Register("b")
	m.Push("b", textFrame("on-b"))

	got1 := m.Pull("w1", []string{"a", "b"})
	require.NotNil(t, got1)
	assert.Equal(t, "on-b", got1.Data.Text)

	got2 := m.Pull("w2", []string{"a", "b"})
	require.NotNil(t, got2)
	assert.Equal(t, "on-b", got2.Data.Text)

	assert.Nil(t, m.Pull("w1", []string{"a", "b"}))
	assert.Nil(t, m.Pull("w2", []string{"a", "b"}))

	m.Push("a", textFrame("on-a"))
	got1 = m.Pull("w1", []string{"a", "b"})
	require.NotNil(t, got1)
	assert.Equal(t, "on-a", got1.Data.Text)
}

// TestPullReturnsOnlyFirstDirtyDevice asserts the tie-break: when a pull
// call would otherwise have two dirty devices to report, only the first in
// list order is returned — but both are marked consumed.
func TestPullReturnsOnlyFirstDirtyDevice(t *testing.T) {
	m := newManager(t)
	m.Register("a")
	m.Register("b")
	m.Push("a", textFrame("on-a"))
	m.Push("b", textFrame("on-b"))

	got := m.Pull("watcher", []string{"a", "b"})
	require.NotNil(t, got)
	assert.Equal(t, "on-a", got.Data.Text)

	// "b" was dirty too but got silently consumed without being returned.
	assert.Nil(t, m.Pull("watcher", []string{"a", "b"}))
}

func TestCloseRemovesPublisherAndSubscriberState(t *testing.T) {
	m := newManager(t)
	m.Register("laptop")
	m.Push("laptop", textFrame("hello"))
	m.Pull("watcher", []string{"laptop"})

	m.Close("watcher", "", []string{"laptop"})
	m.Push("laptop", textFrame("again"))
	// watcher was removed from subs, so a fresh pull sees it as a new
	// first-contact subscriber again.
	got := m.Pull("watcher", []string{"laptop"})
	require.NotNil(t, got)
	assert.Equal(t, "again", got.Data.Text)

	m.Close("pub-conn", "laptop", nil)
	assert.Nil(t, m.Pull("any", []string{"laptop"}))
}

func TestStatsSnapshot(t *testing.T) {
	m := newManager(t)
	m.Register("laptop")
	m.Push("laptop", textFrame("hello"))
	m.Pull("watcher", []string{"laptop"})

	infos := m.Stats()
	require.Len(t, infos, 1)
	assert.Equal(t, "laptop", infos[0].Device)
	assert.Equal(t, uint64(1), infos[0].PublisherCount)
	assert.Equal(t, 1, infos[0].SubscriberCount)
	assert.Equal(t, 0, infos[0].DirtySubscriberCount)
}

func TestForceClose(t *testing.T) {
	m := newManager(t)
	m.Register("laptop")
	m.Push("laptop", textFrame("hello"))

	assert.True(t, m.ForceClose("laptop"))
	assert.False(t, m.ForceClose("laptop"))
	assert.Nil(t, m.Pull("watcher", []string{"laptop"}))
}

func TestRegisterRefcountKeepsChannelAliveUntilLastClose(t *testing.T) {
	m := newManager(t)
	m.Register("laptop")
	m.Register("laptop")
	m.Push("laptop", textFrame("hello"))

	m.Close("pub1", "laptop", nil)
	// second registration still holds the channel open.
	got := m.Pull("watcher", []string{"laptop"})
	require.NotNil(t, got)

	m.Close("pub2", "laptop", nil)
	assert.Nil(t, m.Pull("another", []string{"laptop"}))
}
