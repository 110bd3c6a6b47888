// Package syncengine implements the client's per-resource-kind
// reconciliation loop: it watches the local clipboard and a remote
// resource, keeps at most one pending transfer staged at a time, and
// suppresses the echo that would otherwise occur when it writes a remote
// value back into the clipboard.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fioncat/csync-go/internal/clipboard"
	"github.com/fioncat/csync-go/internal/digest"
	"github.com/fioncat/csync-go/internal/humanize"
	"github.com/fioncat/csync-go/internal/metrics"
)

// Resource is one payload moving between the clipboard and the remote, with
// the digest it was staged under.
type Resource struct {
	Data   []byte
	Digest string
}

func digestOf(data []byte) string {
	return digest.Sum(data)
}

// flag is the staging bucket's direction, matching spec §4.6's
// {None, PushQueued, PullQueued}.
type flag int

const (
	flagNone flag = iota
	flagPushQueued
	flagPullQueued
)

// ResourceManager is the abstract remote/clipboard bridge one Engine runs
// against — one implementation per resource kind (text, image, file).
type ResourceManager interface {
	// ReadRemoteDigest returns the remote's current digest, or ("", nil)
	// if the remote holds nothing yet.
	ReadRemoteDigest(ctx context.Context) (string, error)
	// ReadRemote fetches the full remote payload.
	ReadRemote(ctx context.Context) (*Resource, error)
	// WriteRemote pushes data to the remote.
	WriteRemote(ctx context.Context, data []byte) error

	// ReadClipboard returns the clipboard's current payload of this
	// manager's kind. When the clipboard holds nothing of that kind it
	// returns empty data, clipboard.ErrNotAvailable or
	// clipboard.ErrWrongType; the engine treats all of these as nothing to
	// push.
	ReadClipboard() ([]byte, error)
	WriteClipboard(data []byte) error
}

// Authenticator refreshes the bearer token a ResourceManager's remote calls
// need. Engines that talk to the broker's publish/subscribe surface instead
// of the history store pass a nil Authenticator, which skips token refresh.
type Authenticator interface {
	Login(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// tokenSafetyMargin is subtracted from the server-reported expiry so a
// token is refreshed slightly before it would actually lapse, absorbing
// clock skew between client and server.
const tokenSafetyMargin = 30 * time.Second

// Engine is one resource kind's synchronizer.
type Engine struct {
	name string
	log  *slog.Logger

	mgr  ResourceManager
	auth Authenticator

	remotePollInterval     time.Duration
	clipboardPollInterval  time.Duration
	remoteReadOnly         bool
	clipboardReadOnly      bool

	lastClipboardDigest string
	lastRemoteDigest    string
	firstRemoteObserved bool

	flag   flag
	bucket *Resource

	tokenExpiresAt time.Time
	hasToken       bool

	externalWrite chan []byte
	notify        chan<- Notification

	m *metrics.Sync
}

// Notification is a best-effort event the engine emits after a push or
// pull completes, for Supplement C.6's UI consumers. Sends are non-blocking
// — a full or absent channel never stalls the control loop.
type Notification struct {
	Kind      string // "push" or "pull"
	Digest    string
	Size      int
}

// Options configures one Engine. Name is used only in log lines.
type Options struct {
	Name                  string
	RemotePollInterval    time.Duration
	ClipboardPollInterval time.Duration
	RemoteReadOnly        bool
	ClipboardReadOnly     bool
	Notify                chan<- Notification
	Metrics               *metrics.Sync
}

// New builds an Engine. Call Run to start its control loop.
func New(log *slog.Logger, mgr ResourceManager, auth Authenticator, opts Options) *Engine {
	return &Engine{
		name:                  opts.Name,
		log:                   log,
		mgr:                   mgr,
		auth:                  auth,
		remotePollInterval:    opts.RemotePollInterval,
		clipboardPollInterval: opts.ClipboardPollInterval,
		remoteReadOnly:        opts.RemoteReadOnly,
		clipboardReadOnly:     opts.ClipboardReadOnly,
		externalWrite:         make(chan []byte, 1),
		notify:                opts.Notify,
		m:                     opts.Metrics,
	}
}

// ExternalWrite injects a local paste from the UI/daemon layer: it is
// written straight to the clipboard and never queued for a push, so it
// cannot round-trip back out to the remote.
func (e *Engine) ExternalWrite(data []byte) {
	select {
	case e.externalWrite <- data:
	default:
		// a write is already queued; the newer one wins by overwriting it.
		select {
		case <-e.externalWrite:
		default:
		}
		e.externalWrite <- data
	}
}

// Run executes the control loop until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("starting sync loop", "kind", e.name)

	remoteTicker := time.NewTicker(e.remotePollInterval)
	defer remoteTicker.Stop()
	clipboardTicker := time.NewTicker(e.clipboardPollInterval)
	defer clipboardTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-remoteTicker.C:
			if e.m != nil {
				e.m.RemoteTicks.WithLabelValues(e.name).Inc()
			}
			if err := e.handleRemoteTick(ctx); err != nil {
				e.log.Warn("remote tick failed", "kind", e.name, "err", err)
				if e.m != nil {
					e.m.Errors.WithLabelValues(e.name, "remote").Inc()
				}
			}

		case <-clipboardTicker.C:
			if e.m != nil {
				e.m.ClipboardTicks.WithLabelValues(e.name).Inc()
			}
			if err := e.handleClipboardTick(); err != nil {
				e.log.Warn("clipboard tick failed", "kind", e.name, "err", err)
				if e.m != nil {
					e.m.Errors.WithLabelValues(e.name, "clipboard").Inc()
				}
			}

		case data := <-e.externalWrite:
			if err := e.handleExternalWrite(data); err != nil {
				e.log.Warn("external write failed", "kind", e.name, "err", err)
			}
		}
	}
}

func (e *Engine) handleRemoteTick(ctx context.Context) error {
	if err := e.refreshToken(ctx); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	if e.flag == flagPushQueued {
		rsc := e.bucket
		e.bucket = nil
		e.flag = flagNone

		e.log.Info("pushing to remote", "kind", e.name, "size", humanize.Bytes(uint64(len(rsc.Data))))
		if err := e.mgr.WriteRemote(ctx, rsc.Data); err != nil {
			return fmt.Errorf("write remote: %w", err)
		}
		e.lastRemoteDigest = rsc.Digest
		if e.m != nil {
			e.m.PushesCompleted.WithLabelValues(e.name).Inc()
		}
		e.emitNotification("push", rsc.Digest, len(rsc.Data))
		return nil
	}

	if e.remoteReadOnly {
		return nil
	}

	digest, err := e.mgr.ReadRemoteDigest(ctx)
	if err != nil {
		return fmt.Errorf("read remote digest: %w", err)
	}

	changed := digest != e.lastRemoteDigest
	e.lastRemoteDigest = digest

	if !e.firstRemoteObserved {
		e.firstRemoteObserved = true
		e.log.Info("first remote observation, not importing", "kind", e.name)
		return nil
	}

	if !changed {
		return nil
	}

	rsc, err := e.mgr.ReadRemote(ctx)
	if err != nil {
		return fmt.Errorf("read remote: %w", err)
	}
	if rsc == nil {
		e.log.Warn("remote reported a change but returned nothing", "kind", e.name)
		return nil
	}

	e.lastRemoteDigest = rsc.Digest
	e.bucket = rsc
	e.flag = flagPullQueued
	return nil
}

func (e *Engine) handleClipboardTick() error {
	if e.flag == flagPullQueued {
		rsc := e.bucket
		e.bucket = nil
		e.flag = flagNone

		if err := e.mgr.WriteClipboard(rsc.Data); err != nil {
			return fmt.Errorf("write clipboard: %w", err)
		}
		// update the digest before any subsequent clipboard read, so the
		// very next tick's read-back is recognized as our own echo.
		e.lastClipboardDigest = rsc.Digest
		if e.m != nil {
			e.m.PullsCompleted.WithLabelValues(e.name).Inc()
		}
		e.emitNotification("pull", rsc.Digest, len(rsc.Data))
		return nil
	}

	if e.clipboardReadOnly {
		return nil
	}

	data, err := e.mgr.ReadClipboard()
	if err != nil {
		if isIgnorableClipboardErr(err) {
			return nil
		}
		return fmt.Errorf("read clipboard: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	digest := digestOf(data)
	if digest == e.lastClipboardDigest {
		return nil
	}

	e.lastClipboardDigest = digest
	e.bucket = &Resource{Data: data, Digest: digest}
	e.flag = flagPushQueued
	return nil
}

func (e *Engine) handleExternalWrite(data []byte) error {
	digest := digestOf(data)
	e.log.Info("writing external paste to clipboard", "kind", e.name, "size", humanize.Bytes(uint64(len(data))))
	if err := e.mgr.WriteClipboard(data); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	e.lastClipboardDigest = digest
	return nil
}

func (e *Engine) refreshToken(ctx context.Context) error {
	if e.auth == nil {
		return nil
	}
	if e.hasToken && time.Now().Before(e.tokenExpiresAt) {
		return nil
	}

	_, expiresAt, err := e.auth.Login(ctx)
	if err != nil {
		return err
	}
	e.tokenExpiresAt = expiresAt.Add(-tokenSafetyMargin)
	e.hasToken = true
	return nil
}

func (e *Engine) emitNotification(kind, digest string, size int) {
	if e.notify == nil {
		return
	}
	select {
	case e.notify <- Notification{Kind: kind, Digest: digest, Size: size}:
	default:
	}
}

// isIgnorableClipboardErr reports the two expected clipboard conditions
// spec §4.6 says to treat as "nothing to do" rather than a hard failure.
func isIgnorableClipboardErr(err error) bool {
	return errors.Is(err, clipboard.ErrNotAvailable) || errors.Is(err, clipboard.ErrWrongType)
}
