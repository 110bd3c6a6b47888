package syncengine

import (
	"log/slog"
	"time"

	"github.com/fioncat/csync-go/internal/clipboard"
	"github.com/fioncat/csync-go/internal/metrics"
)

// Config holds the per-kind tuning knobs a Factory reads when building an
// Engine, mirroring daemon/src/sync/config.rs's SyncConfig.
type Config struct {
	RemotePollInterval time.Duration

	TextEnabled           bool
	TextClipboardInterval time.Duration
	TextRemoteReadOnly    bool
	TextClipboardReadOnly bool

	ImageEnabled           bool
	ImageClipboardInterval time.Duration
	ImageRemoteReadOnly    bool
	ImageClipboardReadOnly bool

	FileEnabled           bool
	FileClipboardInterval time.Duration
	FileRemoteReadOnly    bool
	FileClipboardReadOnly bool
}

// FileClipboard is implemented by a clipboard driver that also exposes
// file-payload access; the base clipboard.Clipboard interface has no file
// accessor, so a file sync engine is only built when the driver supports
// this extension.
type FileClipboard interface {
	ReadFile() (name string, mode uint64, data []byte, err error)
	WriteFile(name string, mode uint64, data []byte) error
}

// Factory builds one Engine per enabled resource kind, sharing a single
// clipboard driver the way daemon/src/sync/factory.rs's SyncFactory shares
// one Clipboard handle across its TextSyncManager/ImageSyncManager.
type Factory struct {
	log *slog.Logger
	cfg Config
	cb  clipboard.Clipboard
	m   *metrics.Sync
}

func NewFactory(log *slog.Logger, cfg Config, cb clipboard.Clipboard) *Factory {
	return &Factory{log: log, cfg: cfg, cb: cb}
}

// WithMetrics attaches a Sync metrics recorder; every Engine built
// afterward carries it. Optional: a Factory never given one builds Engines
// that simply skip instrumentation.
func (f *Factory) WithMetrics(m *metrics.Sync) *Factory {
	f.m = m
	return f
}

// BuildText returns a text Engine, or nil if text sync is disabled.
func (f *Factory) BuildText(remote Remote, auth Authenticator, notify chan<- Notification) *Engine {
	if !f.cfg.TextEnabled {
		return nil
	}
	mgr := newTextManager(f.cb, remote)
	return New(f.log, mgr, auth, Options{
		Name:                  KindText.String(),
		RemotePollInterval:    f.cfg.RemotePollInterval,
		ClipboardPollInterval: f.cfg.TextClipboardInterval,
		RemoteReadOnly:        f.cfg.TextRemoteReadOnly,
		ClipboardReadOnly:     f.cfg.TextClipboardReadOnly,
		Notify:                notify,
		Metrics:               f.m,
	})
}

// BuildImage returns an image Engine, or nil if image sync is disabled.
func (f *Factory) BuildImage(remote Remote, auth Authenticator, notify chan<- Notification) *Engine {
	if !f.cfg.ImageEnabled {
		return nil
	}
	mgr := newImageManager(f.cb, remote)
	return New(f.log, mgr, auth, Options{
		Name:                  KindImage.String(),
		RemotePollInterval:    f.cfg.RemotePollInterval,
		ClipboardPollInterval: f.cfg.ImageClipboardInterval,
		RemoteReadOnly:        f.cfg.ImageRemoteReadOnly,
		ClipboardReadOnly:     f.cfg.ImageClipboardReadOnly,
		Notify:                notify,
		Metrics:               f.m,
	})
}

// BuildFile returns a file Engine, or nil if file sync is disabled or the
// clipboard driver does not implement FileClipboard.
func (f *Factory) BuildFile(remote Remote, auth Authenticator, notify chan<- Notification) *Engine {
	if !f.cfg.FileEnabled {
		return nil
	}
	fcb, ok := f.cb.(FileClipboard)
	if !ok {
		f.log.Warn("file sync enabled but clipboard driver has no file support")
		return nil
	}
	mgr := newFileManager(fcb.ReadFile, fcb.WriteFile, remote)
	return New(f.log, mgr, auth, Options{
		Name:                  KindFile.String(),
		RemotePollInterval:    f.cfg.RemotePollInterval,
		ClipboardPollInterval: f.cfg.FileClipboardInterval,
		RemoteReadOnly:        f.cfg.FileRemoteReadOnly,
		ClipboardReadOnly:     f.cfg.FileClipboardReadOnly,
		Notify:                notify,
		Metrics:               f.m,
	})
}

// BuildAll returns every enabled Engine, ready for the caller to run each
// in its own goroutine (see cmd/csync, which supervises them with an
// errgroup.Group).
func (f *Factory) BuildAll(remote Remote, auth Authenticator, notify chan<- Notification) []*Engine {
	var engines []*Engine
	for _, e := range []*Engine{
		f.BuildText(remote, auth, notify),
		f.BuildImage(remote, auth, notify),
		f.BuildFile(remote, auth, notify),
	} {
		if e != nil {
			engines = append(engines, e)
		}
	}
	return engines
}
