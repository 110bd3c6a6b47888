package syncengine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fioncat/csync-go/internal/clipboard"
	"github.com/fioncat/csync-go/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncMetrics is shared by every test in this package: metrics.NewSync
// registers on the default Prometheus registry, and a second call panics.
// Each test uses its own kind label, so their counts stay separate.
var syncMetrics = metrics.NewSync()

// fakeRemote is an in-memory Remote double keyed by Kind.
type fakeRemote struct {
	digest map[Kind]string
	data   map[Kind][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{digest: map[Kind]string{}, data: map[Kind][]byte{}}
}

func (r *fakeRemote) ReadDigest(ctx context.Context, kind Kind) (string, error) {
	return r.digest[kind], nil
}

func (r *fakeRemote) Read(ctx context.Context, kind Kind) ([]byte, error) {
	data, ok := r.data[kind]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (r *fakeRemote) Write(ctx context.Context, kind Kind, data []byte) error {
	r.data[kind] = data
	r.digest[kind] = digestOf(data)
	return nil
}

func (r *fakeRemote) set(kind Kind, data []byte) {
	r.data[kind] = data
	r.digest[kind] = digestOf(data)
}

func newTextEngine(cb *clipboard.Scripted, remote *fakeRemote) *Engine {
	mgr := newTextManager(cb, remote)
	return New(testLogger(), mgr, nil, Options{Name: "text"})
}

func TestFirstRemoteObservationIsSilent(t *testing.T) {
	cb := clipboard.NewScripted()
	remote := newFakeRemote()
	remote.set(KindText, []byte("preexisting"))

	e := newTextEngine(cb, remote)
	require.NoError(t, e.handleRemoteTick(context.Background()))

	assert.Equal(t, flagNone, e.flag, "first observation must not stage a pull")
	assert.True(t, e.firstRemoteObserved)
}

func TestRemoteChangeAfterFirstObservationQueuesPull(t *testing.T) {
	cb := clipboard.NewScripted()
	remote := newFakeRemote()

	e := newTextEngine(cb, remote)
	require.NoError(t, e.handleRemoteTick(context.Background())) // first observation, nothing there yet

	remote.set(KindText, []byte("hello"))
	require.NoError(t, e.handleRemoteTick(context.Background()))

	require.Equal(t, flagPullQueued, e.flag)
	require.NotNil(t, e.bucket)
	assert.Equal(t, []byte("hello"), e.bucket.Data)

	require.NoError(t, e.handleClipboardTick())
	text, err := cb.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, flagNone, e.flag)
}

func TestPullWriteSuppressesEchoOnNextClipboardTick(t *testing.T) {
	cb := clipboard.NewScripted()
	remote := newFakeRemote()

	e := newTextEngine(cb, remote)
	require.NoError(t, e.handleRemoteTick(context.Background()))
	remote.set(KindText, []byte("hello"))
	require.NoError(t, e.handleRemoteTick(context.Background()))
	require.NoError(t, e.handleClipboardTick()) // applies the pull, writes clipboard

	// the read-back of our own write must not be treated as a new local edit.
	require.NoError(t, e.handleClipboardTick())
	assert.Equal(t, flagNone, e.flag)
}

func TestClipboardChangeQueuesPush(t *testing.T) {
	cb := clipboard.NewScripted()
	cb.ScriptText("local edit")
	remote := newFakeRemote()

	e := newTextEngine(cb, remote)
	require.NoError(t, e.handleClipboardTick())

	require.Equal(t, flagPushQueued, e.flag)
	require.NoError(t, e.handleRemoteTick(context.Background()))

	data, err := remote.Read(context.Background(), KindText)
	require.NoError(t, err)
	assert.Equal(t, []byte("local edit"), data)
	assert.Equal(t, flagNone, e.flag)
}

func TestUnchangedClipboardDoesNotRequeue(t *testing.T) {
	cb := clipboard.NewScripted()
	cb.ScriptText("same")
	remote := newFakeRemote()

	e := newTextEngine(cb, remote)
	require.NoError(t, e.handleClipboardTick())
	require.NoError(t, e.handleRemoteTick(context.Background()))
	assert.Equal(t, flagNone, e.flag)

	require.NoError(t, e.handleClipboardTick())
	assert.Equal(t, flagNone, e.flag, "re-reading the same content must not stage another push")
}

func TestIgnorableClipboardErrorsAreNotFatal(t *testing.T) {
	cb := clipboard.NewScripted()
	cb.ScriptError(clipboard.ErrNotAvailable)
	remote := newFakeRemote()

	e := newTextEngine(cb, remote)
	assert.NoError(t, e.handleClipboardTick())
}

func TestExternalWriteDoesNotQueueAPush(t *testing.T) {
	cb := clipboard.NewScripted()
	remote := newFakeRemote()

	e := newTextEngine(cb, remote)
	require.NoError(t, e.handleExternalWrite([]byte("pasted")))

	text, err := cb.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "pasted", text)
	assert.Equal(t, flagNone, e.flag)

	require.NoError(t, e.handleClipboardTick())
	assert.Equal(t, flagNone, e.flag, "the clipboard tick must recognize the external write as already synced")
}

func TestImageRoundTripsThroughRemoteEncoding(t *testing.T) {
	cb := clipboard.NewScripted()
	img := &clipboard.Image{Width: 4, Height: 2, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	cb.ScriptImage(img)

	remote := newFakeRemote()
	mgr := newImageManager(cb, remote)
	e := New(testLogger(), mgr, nil, Options{Name: "image"})

	require.NoError(t, e.handleClipboardTick())
	require.NoError(t, e.handleRemoteTick(context.Background()))

	raw, err := remote.Read(context.Background(), KindImage)
	require.NoError(t, err)
	decoded, err := decodeImage(raw)
	require.NoError(t, err)
	assert.Equal(t, img.Width, decoded.Width)
	assert.Equal(t, img.Height, decoded.Height)
	assert.Equal(t, img.Data, decoded.Data)
}

func TestMetricsCountPushesCompleted(t *testing.T) {
	cb := clipboard.NewScripted()
	cb.ScriptText("local edit")
	remote := newFakeRemote()

	m := syncMetrics
	mgr := newTextManager(cb, remote)
	e := New(testLogger(), mgr, nil, Options{Name: "metrics-text", Metrics: m})

	require.NoError(t, e.handleClipboardTick())
	require.NoError(t, e.handleRemoteTick(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PushesCompleted.WithLabelValues("metrics-text")))
}

func TestMetricsCountRemoteTickErrors(t *testing.T) {
	cb := clipboard.NewScripted()
	remote := newFakeRemote()

	m := syncMetrics
	mgr := brokenRemoteDigest{newTextManager(cb, remote)}
	e := New(testLogger(), mgr, nil, Options{
		Name:                  "metrics-broken",
		Metrics:               m,
		RemotePollInterval:    time.Millisecond,
		ClipboardPollInterval: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	assert.Greater(t, testutil.ToFloat64(m.RemoteTicks.WithLabelValues("metrics-broken")), float64(0))
	assert.Greater(t, testutil.ToFloat64(m.Errors.WithLabelValues("metrics-broken", "remote")), float64(0))
}

// brokenRemoteDigest forces ReadRemoteDigest to fail so a caller can exercise
// the remote-tick error path without a transport failure mode of its own.
type brokenRemoteDigest struct {
	ResourceManager
}

func (brokenRemoteDigest) ReadRemoteDigest(ctx context.Context) (string, error) {
	return "", errBrokenRemote
}

var errBrokenRemote = errors.New("broken remote")
