// Package registry tracks open real-time channels and mirrors text to all of them.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrClosed = errors.New("registry: closed")

// Channel is one live real-time connection.
type Channel interface {
	ID() string
	Send(ctx context.Context, text string) error
	Close() error
}

// Registry is owned by the server instance and torn down with it.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]Channel
	closed bool
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		active: make(map[string]Channel),
	}
}

// Connect records an accepted channel. A channel with an id that is already
// registered replaces nothing and is reported as an error.
func (r *Registry) Connect(ch Channel) error {
	if ch == nil {
		return errors.New("registry: channel must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.active[ch.ID()]; ok {
		return errors.New("registry: channel " + ch.ID() + " already connected")
	}
	r.active[ch.ID()] = ch
	r.logger.Info("channel connected", "channel_id", ch.ID(), "active", len(r.active))
	return nil
}

// Disconnect removes ch. It is a no-op when ch is not registered, so calling
// it twice is safe.
func (r *Registry) Disconnect(ch Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[ch.ID()]; ok && cur == ch {
		delete(r.active, ch.ID())
		r.logger.Info("channel disconnected", "channel_id", ch.ID(), "active", len(r.active))
	}
}

// Broadcast delivers text to a snapshot of the active channels. A channel that
// fails to receive is dropped and closed; the others still get the text.
// It returns the number of successful deliveries.
func (r *Registry) Broadcast(ctx context.Context, text string) int {
	targets := r.snapshot()
	delivered := 0
	for _, ch := range targets {
		if err := ch.Send(ctx, text); err != nil {
			r.logger.WarnContext(ctx, "broadcast delivery failed", "channel_id", ch.ID(), "err", err)
			r.Disconnect(ch)
			_ = ch.Close()
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Close closes every channel and rejects later connects.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	chans := make([]Channel, 0, len(r.active))
	for id, ch := range r.active {
		chans = append(chans, ch)
		delete(r.active, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, ch := range chans {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) snapshot() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Channel, 0, len(r.active))
	for _, ch := range r.active {
		out = append(out, ch)
	}
	return out
}
