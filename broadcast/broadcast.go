// Package broadcast lets several instances of the same device, sharing one
// persisted store, tell each other that reconnect polling started.
package broadcast

import (
	"errors"
	"sync"

	"go.uber.org/zap/zapcore"
)

// TypeReconnectRequest asks other instances of the device to start polling.
const TypeReconnectRequest = "reconnect-request"

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("broadcast: closed")

// Message is posted on a Local channel.
type Message struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	// Origin identifies the posting instance.
	Origin string `json:"origin"`
}

func (m Message) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", m.Type)
	enc.AddString("device", m.DeviceID)
	enc.AddString("origin", m.Origin)
	return nil
}

// Local is a same-device broadcast capability.
type Local interface {
	// Post delivers msg to every subscriber, the poster's own included.
	Post(msg Message) error
	// Subscribe returns a channel of posted messages and a function that
	// cancels the subscription.
	Subscribe() (<-chan Message, func())
	Close() error
}

// Nop is a Local that delivers nothing, for a lone headless instance.
type Nop struct{}

func (Nop) Post(Message) error { return nil }

func (Nop) Subscribe() (<-chan Message, func()) { return nil, func() {} }

func (Nop) Close() error { return nil }

const subscriberBuffer = 16

// Hub is an in-process Local shared by every instance of a device in one
// process. Delivery is best effort: a subscriber that is not draining its
// channel misses messages.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Message]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Message]struct{}{}}
}

func (h *Hub) Post(msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Close closes every subscriber channel.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	return nil
}
