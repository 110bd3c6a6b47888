// Package channel implements the broker's per-device routing table: one
// owner goroutine holds all state and serializes every register, push,
// pull, and close through buffered request channels, so the rest of the
// broker never needs a lock to touch it.
package channel

import (
	"context"

	"github.com/fioncat/csync-go/internal/wire"
)

const requestBufferSize = 4096

// entry is one device's channel: its last published frame and the set of
// subscribers that have (or have not) been told about it.
type entry struct {
	data *wire.Frame

	// subs maps a subscriber address to whether it is owed a delivery of
	// data. An address absent from this map has never seen this device's
	// channel at all — the zero-value semantics of a plain bool would
	// collapse that case with "already delivered", so presence itself is
	// part of the state.
	subs map[string]bool

	// count is the number of live publisher registrations for this device
	// name. A device can be registered more than once concurrently; the
	// channel is torn down only when the last one closes.
	count uint64
}

type registerRequest struct {
	publish string
	resp    chan struct{}
}

type pushRequest struct {
	publish string
	frame   *wire.Frame
	resp    chan struct{}
}

type pullRequest struct {
	addr string
	subs []string
	resp chan *wire.Frame
}

type closeRequest struct {
	addr    string
	publish string
	subs    []string
	resp    chan struct{}
}

type statsRequest struct {
	resp chan []Info
}

type forceCloseRequest struct {
	device string
	resp   chan bool
}

// Info is a point-in-time snapshot of one device's channel, exposed to the
// admin surface. It is a copy — mutating it has no effect on the manager.
type Info struct {
	Device               string
	PublisherCount       uint64
	SubscriberCount      int
	DirtySubscriberCount int
}

// Manager owns the routing table. Create one with New and run it for the
// lifetime of the broker.
type Manager struct {
	registerCh   chan registerRequest
	pushCh       chan pushRequest
	pullCh       chan pullRequest
	closeCh      chan closeRequest
	statsCh      chan statsRequest
	forceCloseCh chan forceCloseRequest
}

// New starts the owner goroutine and returns a handle for issuing requests
// to it. The goroutine runs until ctx is canceled.
func New(ctx context.Context) *Manager {
	m := &Manager{
		registerCh:   make(chan registerRequest, requestBufferSize),
		pushCh:       make(chan pushRequest, requestBufferSize),
		pullCh:       make(chan pullRequest, requestBufferSize),
		closeCh:      make(chan closeRequest, requestBufferSize),
		statsCh:      make(chan statsRequest, requestBufferSize),
		forceCloseCh: make(chan forceCloseRequest, requestBufferSize),
	}
	go m.run(ctx)
	return m
}

func (m *Manager) run(ctx context.Context) {
	channels := make(map[string]*entry)
	for {
		select {
		case <-ctx.Done():
			return

		case req := <-m.registerCh:
			handleRegister(channels, req.publish)
			close(req.resp)

		case req := <-m.pushCh:
			handlePush(channels, req.publish, req.frame)
			close(req.resp)

		case req := <-m.pullCh:
			req.resp <- handlePull(channels, req.addr, req.subs)

		case req := <-m.closeCh:
			handleClose(channels, req.addr, req.publish, req.subs)
			close(req.resp)

		case req := <-m.statsCh:
			req.resp <- handleStats(channels)

		case req := <-m.forceCloseCh:
			_, existed := channels[req.device]
			delete(channels, req.device)
			req.resp <- existed
		}
	}
}

func handleStats(channels map[string]*entry) []Info {
	infos := make([]Info, 0, len(channels))
	for device, ch := range channels {
		dirty := 0
		for _, d := range ch.subs {
			if d {
				dirty++
			}
		}
		infos = append(infos, Info{
			Device:               device,
			PublisherCount:       ch.count,
			SubscriberCount:      len(ch.subs),
			DirtySubscriberCount: dirty,
		})
	}
	return infos
}

func handleRegister(channels map[string]*entry, publish string) {
	ch, ok := channels[publish]
	if !ok {
		ch = &entry{subs: make(map[string]bool)}
		channels[publish] = ch
	}
	ch.count++
}

func handlePush(channels map[string]*entry, publish string, frame *wire.Frame) {
	ch, ok := channels[publish]
	if !ok {
		return
	}
	ch.data = frame
	for addr := range ch.subs {
		ch.subs[addr] = true
	}
}

// handlePull consumes the dirty flag of every watched device that has one
// set, but returns only the first such device's frame — the remainder are
// marked delivered without their data ever reaching the caller this round.
// A later pull against the same subs list will find them clean and move on
// to whichever device is dirty next.
func handlePull(channels map[string]*entry, addr string, subs []string) *wire.Frame {
	var result *wire.Frame
	for _, sub := range subs {
		ch, ok := channels[sub]
		if !ok || ch.data == nil {
			continue
		}

		dirty, seen := ch.subs[addr]
		if seen {
			if !dirty {
				continue
			}
			ch.subs[addr] = false
		} else {
			ch.subs[addr] = false
		}

		if result == nil {
			result = ch.data
		}
	}
	return result
}

func handleClose(channels map[string]*entry, addr, publish string, subs []string) {
	if publish != "" {
		if ch, ok := channels[publish]; ok {
			ch.count--
			if ch.count == 0 {
				delete(channels, publish)
			}
		}
	}
	for _, sub := range subs {
		if ch, ok := channels[sub]; ok {
			delete(ch.subs, addr)
		}
	}
}

// Register adds one publisher registration for device name publish,
// creating its channel entry if this is the first.
func (m *Manager) Register(publish string) {
	resp := make(chan struct{})
	m.registerCh <- registerRequest{publish: publish, resp: resp}
	<-resp
}

// Push publishes frame as the latest payload for device publish, marking it
// dirty for every current subscriber. A push against a device with no
// registered channel is silently dropped — it means the publisher closed
// its connection between accepting the write and this call landing.
func (m *Manager) Push(publish string, frame *wire.Frame) {
	resp := make(chan struct{})
	m.pushCh <- pushRequest{publish: publish, frame: frame, resp: resp}
	<-resp
}

// Pull asks, on behalf of connection addr, whether any of subs has a fresh
// payload. Returns nil when none do.
func (m *Manager) Pull(addr string, subs []string) *wire.Frame {
	resp := make(chan *wire.Frame)
	m.pullCh <- pullRequest{addr: addr, subs: subs, resp: resp}
	return <-resp
}

// Close tears down connection addr's presence in the routing table: its
// publisher registration (if publish is non-empty) and its subscriber
// entries in every device listed in subs. A no-op call (both empty) returns
// immediately without a round trip to the owner goroutine.
func (m *Manager) Close(addr, publish string, subs []string) {
	if publish == "" && len(subs) == 0 {
		return
	}
	resp := make(chan struct{})
	m.closeCh <- closeRequest{addr: addr, publish: publish, subs: subs, resp: resp}
	<-resp
}

// Stats returns a snapshot of every live device channel, for the admin
// introspection surface.
func (m *Manager) Stats() []Info {
	resp := make(chan []Info)
	m.statsCh <- statsRequest{resp: resp}
	return <-resp
}

// ForceClose removes device's channel record entirely regardless of its
// publisher refcount, for an operator-initiated reset. Returns false if no
// such device was registered.
func (m *Manager) ForceClose(device string) bool {
	resp := make(chan bool)
	m.forceCloseCh <- forceCloseRequest{device: device, resp: resp}
	return <-resp
}
