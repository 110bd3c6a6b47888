// Package clipboard defines the abstract OS clipboard capability the sync
// engine consumes. Host-specific implementations (X11, Wayland, macOS
// pasteboard, Windows clipboard) are plug-ins outside this module; this
// package only holds the contract and a scripted fixture for tests.
package clipboard

import "errors"

// ErrNotAvailable means the clipboard currently holds nothing readable —
// expected when it was just cleared or holds a format this driver doesn't
// surface at all.
var ErrNotAvailable = errors.New("clipboard: content not available")

// ErrWrongType means the clipboard holds content, but not of the kind the
// caller asked for (e.g. an image read requested while the clipboard holds
// text). Expected whenever the user copies something of a different kind;
// callers must not treat this as a hard failure.
var ErrWrongType = errors.New("clipboard: content is not the requested kind")

// Kind distinguishes the payload shapes a clipboard can hold.
type Kind int

const (
	KindText Kind = iota
	KindImage
)

// Image is a decoded bitmap clipboard payload.
type Image struct {
	Width  uint64
	Height uint64
	Data   []byte
}

// Clipboard is the capability the sync engine depends on: read the current
// text/image, write one, and be notified when the contents change. A
// concrete implementation is free to poll internally and only ever surface
// state through these methods — the engine never assumes a push model.
type Clipboard interface {
	ReadText() (string, error)
	ReadImage() (*Image, error)

	WriteText(text string) error
	WriteImage(img *Image) error

	// Changes returns a channel that receives a value every time the
	// clipboard's contents change, for drivers that can detect this
	// natively. Implementations that can only poll may synthesize this by
	// comparing digests on a timer; the sync engine treats both the same.
	Changes() <-chan struct{}

	// Close releases any OS resources (event listeners, watcher threads)
	// the implementation holds.
	Close() error
}
