package syncengine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fioncat/csync-go/internal/clipboard"
)

// textManager bridges KindText between the clipboard and a Remote. Remote
// payloads are the UTF-8 text bytes verbatim.
type textManager struct {
	cb     clipboard.Clipboard
	remote Remote
}

func newTextManager(cb clipboard.Clipboard, remote Remote) *textManager {
	return &textManager{cb: cb, remote: remote}
}

func (m *textManager) ReadRemoteDigest(ctx context.Context) (string, error) {
	return m.remote.ReadDigest(ctx, KindText)
}

func (m *textManager) ReadRemote(ctx context.Context) (*Resource, error) {
	data, err := m.remote.Read(ctx, KindText)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return &Resource{Data: data, Digest: digestOf(data)}, nil
}

func (m *textManager) WriteRemote(ctx context.Context, data []byte) error {
	return m.remote.Write(ctx, KindText, data)
}

func (m *textManager) ReadClipboard() ([]byte, error) {
	text, err := m.cb.ReadText()
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (m *textManager) WriteClipboard(data []byte) error {
	return m.cb.WriteText(string(data))
}

// imageManager bridges KindImage. Remote payloads are a fixed 16-byte
// width/height header (big-endian uint64 each) followed by raw pixel data,
// matching internal/wire's numeric field encoding so both ends agree on
// byte order without a shared codec package.
type imageManager struct {
	cb     clipboard.Clipboard
	remote Remote
}

func newImageManager(cb clipboard.Clipboard, remote Remote) *imageManager {
	return &imageManager{cb: cb, remote: remote}
}

const imageHeaderLength = 16

var errImageHeaderTooShort = errors.New("syncengine: image payload shorter than its header")

func encodeImage(img *clipboard.Image) []byte {
	out := make([]byte, imageHeaderLength+len(img.Data))
	binary.BigEndian.PutUint64(out[0:8], img.Width)
	binary.BigEndian.PutUint64(out[8:16], img.Height)
	copy(out[imageHeaderLength:], img.Data)
	return out
}

func decodeImage(data []byte) (*clipboard.Image, error) {
	if len(data) < imageHeaderLength {
		return nil, errImageHeaderTooShort
	}
	return &clipboard.Image{
		Width:  binary.BigEndian.Uint64(data[0:8]),
		Height: binary.BigEndian.Uint64(data[8:16]),
		Data:   data[imageHeaderLength:],
	}, nil
}

func (m *imageManager) ReadRemoteDigest(ctx context.Context) (string, error) {
	return m.remote.ReadDigest(ctx, KindImage)
}

func (m *imageManager) ReadRemote(ctx context.Context) (*Resource, error) {
	data, err := m.remote.Read(ctx, KindImage)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return &Resource{Data: data, Digest: digestOf(data)}, nil
}

func (m *imageManager) WriteRemote(ctx context.Context, data []byte) error {
	return m.remote.Write(ctx, KindImage, data)
}

func (m *imageManager) ReadClipboard() ([]byte, error) {
	img, err := m.cb.ReadImage()
	if err != nil {
		return nil, err
	}
	return encodeImage(img), nil
}

func (m *imageManager) WriteClipboard(data []byte) error {
	img, err := decodeImage(data)
	if err != nil {
		return err
	}
	return m.cb.WriteImage(img)
}

// fileManager bridges KindFile. Remote payloads are a mode header
// (8-byte big-endian uint64, matching wire's numeric field convention),
// followed by a length-prefixed name, followed by the file contents —
// Supplement C.7's mode bits and name preserved end to end.
type fileManager struct {
	read  func() (name string, mode uint64, data []byte, err error)
	write func(name string, mode uint64, data []byte) error

	remote Remote
}

// newFileManager takes explicit read/write callbacks rather than a
// clipboard.Clipboard method, since the base Clipboard interface has no
// file-payload accessor; a file-aware clipboard driver supplies them.
func newFileManager(
	read func() (string, uint64, []byte, error),
	write func(string, uint64, []byte) error,
	remote Remote,
) *fileManager {
	return &fileManager{read: read, write: write, remote: remote}
}

func encodeFile(name string, mode uint64, data []byte) []byte {
	nameBytes := []byte(name)
	out := make([]byte, 8+4+len(nameBytes)+len(data))
	binary.BigEndian.PutUint64(out[0:8], mode)
	binary.BigEndian.PutUint32(out[8:12], uint32(len(nameBytes)))
	copy(out[12:12+len(nameBytes)], nameBytes)
	copy(out[12+len(nameBytes):], data)
	return out
}

var errFileHeaderTooShort = errors.New("syncengine: file payload shorter than its header")

func decodeFile(data []byte) (name string, mode uint64, content []byte, err error) {
	if len(data) < 12 {
		return "", 0, nil, errFileHeaderTooShort
	}
	mode = binary.BigEndian.Uint64(data[0:8])
	nameLen := binary.BigEndian.Uint32(data[8:12])
	if uint32(len(data)-12) < nameLen {
		return "", 0, nil, fmt.Errorf("syncengine: file name length %d exceeds payload", nameLen)
	}
	name = string(data[12 : 12+nameLen])
	content = data[12+nameLen:]
	return name, mode, content, nil
}

func (m *fileManager) ReadRemoteDigest(ctx context.Context) (string, error) {
	return m.remote.ReadDigest(ctx, KindFile)
}

func (m *fileManager) ReadRemote(ctx context.Context) (*Resource, error) {
	data, err := m.remote.Read(ctx, KindFile)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return &Resource{Data: data, Digest: digestOf(data)}, nil
}

func (m *fileManager) WriteRemote(ctx context.Context, data []byte) error {
	return m.remote.Write(ctx, KindFile, data)
}

func (m *fileManager) ReadClipboard() ([]byte, error) {
	name, mode, data, err := m.read()
	if err != nil {
		return nil, err
	}
	return encodeFile(name, mode, data), nil
}

func (m *fileManager) WriteClipboard(data []byte) error {
	name, mode, content, err := decodeFile(data)
	if err != nil {
		return err
	}
	return m.write(name, mode, content)
}
