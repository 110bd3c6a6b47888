// Package client dials the broker's publish/subscribe surface and
// implements syncengine.Remote on top of it, so the sync engine never has
// to know it is talking to a TCP connection at all.
package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fioncat/csync-go/internal/connection"
	"github.com/fioncat/csync-go/internal/digest"
	"github.com/fioncat/csync-go/internal/secret"
	"github.com/fioncat/csync-go/internal/syncengine"
	"github.com/fioncat/csync-go/internal/wire"
)

// Config describes how to reach the broker and which peers' channels to
// fold into this device's view of the remote.
type Config struct {
	Addr     string
	Password []byte // nil/empty disables encryption, matching server.Config
	Device   string
	Peers    []string
}

// Client dials one publisher connection (for Write) and one subscriber
// connection (for ReadDigest/Read) and keeps the subscriber one pumped by
// a background PULL loop, demultiplexing inbound frames by
// syncengine.Kind. Both connections outlive the individual sync engines
// that share this Client; one Client instance backs all three kinds.
type Client struct {
	cfg Config

	pubMu   sync.Mutex
	pubConn *connection.Conn

	mu     sync.Mutex
	latest map[syncengine.Kind]cached

	stopCh chan struct{}
	once   sync.Once
}

type cached struct {
	digest string
	data   []byte
}

// Dial opens both connections and starts the background pull loop.
func Dial(cfg Config) (*Client, error) {
	pubConn, err := dialAndRegister(cfg.Addr, cfg.Password, &wire.RegisterFrame{Publish: &cfg.Device})
	if err != nil {
		return nil, fmt.Errorf("client: dial publisher: %w", err)
	}

	subConn, err := dialAndRegister(cfg.Addr, cfg.Password, &wire.RegisterFrame{Subs: cfg.Peers})
	if err != nil {
		pubConn.Close()
		return nil, fmt.Errorf("client: dial subscriber: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		pubConn: pubConn,
		latest:  make(map[syncengine.Kind]cached),
		stopCh:  make(chan struct{}),
	}
	go c.pullLoop(subConn)
	return c, nil
}

func dialAndRegister(addr string, password []byte, reg *wire.RegisterFrame) (*connection.Conn, error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	conn := connection.Wrap(raw, nil)

	if err := conn.WriteFrame(wire.NewRegister(reg)); err != nil {
		conn.Close()
		return nil, err
	}
	accept, err := conn.ReadFrame()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if accept.Flag != wire.FlagAccept {
		conn.Close()
		return nil, fmt.Errorf("client: expected ACCEPT, got %s", accept.Flag)
	}

	if accept.Accept.Auth != nil {
		h := secret.Handshake{
			Nonce:      accept.Accept.Auth.Nonce,
			Salt:       accept.Accept.Auth.Salt,
			Check:      accept.Accept.Auth.Check,
			CheckPlain: accept.Accept.Auth.CheckPlain,
		}
		if err := secret.VerifyHandshake(password, &h); err != nil {
			conn.Close()
			return nil, err
		}
		conn.SetCipher(secret.New(password))
	}

	return conn, nil
}

// pullLoopInterval is how often the subscriber connection issues a PULL
// when the previous one came back NONE, matching the broker's own
// PingInterval order of magnitude so an idle client still notices a dead
// connection via the server's periodic PING.
const pullLoopInterval = 200 * time.Millisecond

func (c *Client) pullLoop(subConn *connection.Conn) {
	defer subConn.Close()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err := subConn.WriteFrame(wire.NewPull()); err != nil {
			return
		}
		reply, err := subConn.ReadFrame()
		if err != nil {
			return
		}

		switch reply.Flag {
		case wire.FlagPushText, wire.FlagPushImage, wire.FlagPushFile:
			c.store(reply.Data)
			continue // pull again immediately; there may be more queued
		case wire.FlagPing:
			continue
		case wire.FlagNone:
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(pullLoopInterval):
		}
	}
}

func (c *Client) store(d *wire.DataFrame) {
	kind, data := decodeDataFrame(d)

	c.mu.Lock()
	c.latest[kind] = cached{digest: d.Digest, data: data}
	c.mu.Unlock()
}

// decodeDataFrame renders a wire.DataFrame's typed payload back into the
// flat byte encoding internal/syncengine's per-kind resource managers
// expect from Remote.Read, mirroring resourcemanager.go's own
// encodeImage/encodeFile layout so both sides agree on byte order without
// sharing an exported codec.
func decodeDataFrame(d *wire.DataFrame) (syncengine.Kind, []byte) {
	switch d.Kind {
	case wire.PayloadImage:
		img := d.Image
		out := make([]byte, 16+len(img.Data))
		binary.BigEndian.PutUint64(out[0:8], img.Width)
		binary.BigEndian.PutUint64(out[8:16], img.Height)
		copy(out[16:], img.Data)
		return syncengine.KindImage, out
	case wire.PayloadFile:
		f := d.File
		name := []byte(f.Name)
		out := make([]byte, 8+4+len(name)+len(f.Data))
		binary.BigEndian.PutUint64(out[0:8], f.Mode)
		binary.BigEndian.PutUint32(out[8:12], uint32(len(name)))
		copy(out[12:12+len(name)], name)
		copy(out[12+len(name):], f.Data)
		return syncengine.KindFile, out
	default:
		return syncengine.KindText, []byte(d.Text)
	}
}

// encodeDataFrame is decodeDataFrame's inverse, used by Write to turn the
// flat byte encoding back into the typed DataFrame the wire protocol
// carries.
func encodeDataFrame(kind syncengine.Kind, device string, digest string, data []byte) (*wire.DataFrame, error) {
	switch kind {
	case syncengine.KindImage:
		if len(data) < 16 {
			return nil, fmt.Errorf("client: image payload shorter than its header")
		}
		return &wire.DataFrame{
			Kind:         wire.PayloadImage,
			OriginDevice: &device,
			Digest:       digest,
			Image: &wire.ImagePayload{
				Width:  binary.BigEndian.Uint64(data[0:8]),
				Height: binary.BigEndian.Uint64(data[8:16]),
				Data:   data[16:],
			},
		}, nil
	case syncengine.KindFile:
		if len(data) < 12 {
			return nil, fmt.Errorf("client: file payload shorter than its header")
		}
		nameLen := binary.BigEndian.Uint32(data[8:12])
		if uint32(len(data)-12) < nameLen {
			return nil, fmt.Errorf("client: file name length %d exceeds payload", nameLen)
		}
		return &wire.DataFrame{
			Kind:         wire.PayloadFile,
			OriginDevice: &device,
			Digest:       digest,
			File: &wire.FilePayload{
				Name: string(data[12 : 12+nameLen]),
				Mode: binary.BigEndian.Uint64(data[0:8]),
				Data: data[12+nameLen:],
			},
		}, nil
	default:
		return &wire.DataFrame{
			Kind:         wire.PayloadText,
			OriginDevice: &device,
			Digest:       digest,
			Text:         string(data),
		}, nil
	}
}

// ReadDigest satisfies syncengine.Remote by returning whatever the
// background pull loop has most recently demultiplexed for kind, without
// a network round trip — the loop already drains every pending frame.
func (c *Client) ReadDigest(ctx context.Context, kind syncengine.Kind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest[kind].digest, nil
}

func (c *Client) Read(ctx context.Context, kind syncengine.Kind) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.latest[kind]
	if !ok {
		return nil, nil
	}
	return entry.data, nil
}

func (c *Client) Write(ctx context.Context, kind syncengine.Kind, data []byte) error {
	frame, err := encodeDataFrame(kind, c.cfg.Device, digest.Sum(data), data)
	if err != nil {
		return err
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if err := c.pubConn.WriteFrame(wire.NewPush(frame)); err != nil {
		return err
	}
	reply, err := c.pubConn.ReadFrame()
	if err != nil {
		return err
	}
	if reply.Flag != wire.FlagOK {
		return fmt.Errorf("client: push rejected: %s", reply.Flag)
	}
	return nil
}

// Close stops the pull loop and closes both connections.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	return c.pubConn.Close()
}
