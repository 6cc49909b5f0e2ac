package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id      string
	sendErr error

	mu     sync.Mutex
	got    []string
	closed int
	onSend func()
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(_ context.Context, text string) error {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.got = append(f.got, text)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func newTestRegistry() *Registry {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConnect_RecordsChannel(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Connect(&fakeChannel{id: "a"}))
	require.NoError(t, r.Connect(&fakeChannel{id: "b"}))
	require.Equal(t, 2, r.Len())
}

func TestConnect_RejectsNilAndDuplicates(t *testing.T) {
	r := newTestRegistry()
	require.Error(t, r.Connect(nil))

	ch := &fakeChannel{id: "a"}
	require.NoError(t, r.Connect(ch))
	require.Error(t, r.Connect(ch))
	require.Equal(t, 1, r.Len())
}

func TestDisconnect_Twice(t *testing.T) {
	r := newTestRegistry()
	a := &fakeChannel{id: "a"}
	b := &fakeChannel{id: "b"}
	require.NoError(t, r.Connect(a))
	require.NoError(t, r.Connect(b))

	r.Disconnect(a)
	require.Equal(t, 1, r.Len())

	require.NotPanics(t, func() { r.Disconnect(a) })
	require.Equal(t, 1, r.Len())

	r.Disconnect(nil)
	require.Equal(t, 1, r.Len())
}

func TestDisconnect_IgnoresStaleChannelWithSameID(t *testing.T) {
	r := newTestRegistry()
	old := &fakeChannel{id: "a"}
	require.NoError(t, r.Connect(old))
	r.Disconnect(old)

	fresh := &fakeChannel{id: "a"}
	require.NoError(t, r.Connect(fresh))
	r.Disconnect(old)
	require.Equal(t, 1, r.Len())
}

func TestBroadcast_NoChannels(t *testing.T) {
	r := newTestRegistry()
	require.NotPanics(t, func() {
		require.Zero(t, r.Broadcast(context.Background(), "hello"))
	})
}

func TestBroadcast_DeliversToAll(t *testing.T) {
	r := newTestRegistry()
	a := &fakeChannel{id: "a"}
	b := &fakeChannel{id: "b"}
	require.NoError(t, r.Connect(a))
	require.NoError(t, r.Connect(b))

	require.Equal(t, 2, r.Broadcast(context.Background(), "hello"))
	require.Equal(t, []string{"hello"}, a.received())
	require.Equal(t, []string{"hello"}, b.received())
}

func TestBroadcast_IsolatesFailedChannel(t *testing.T) {
	r := newTestRegistry()
	dead := &fakeChannel{id: "dead", sendErr: errors.New("broken pipe")}
	a := &fakeChannel{id: "a"}
	b := &fakeChannel{id: "b"}
	for _, ch := range []*fakeChannel{dead, a, b} {
		require.NoError(t, r.Connect(ch))
	}

	require.Equal(t, 2, r.Broadcast(context.Background(), "hello"))
	require.Equal(t, []string{"hello"}, a.received())
	require.Equal(t, []string{"hello"}, b.received())
	require.Equal(t, 1, dead.closed)
	require.Equal(t, 2, r.Len())
}

func TestBroadcast_DisconnectDuringBroadcast(t *testing.T) {
	r := newTestRegistry()
	a := &fakeChannel{id: "a"}
	b := &fakeChannel{id: "b"}
	// Whichever channel is reached first removes the other one mid-iteration.
	a.onSend = func() { r.Disconnect(b) }
	b.onSend = func() { r.Disconnect(a) }
	require.NoError(t, r.Connect(a))
	require.NoError(t, r.Connect(b))

	require.NotPanics(t, func() {
		require.Equal(t, 2, r.Broadcast(context.Background(), "hello"))
	})
	require.Zero(t, r.Len())
}

func TestBroadcast_Concurrent(t *testing.T) {
	r := newTestRegistry()
	chans := make([]*fakeChannel, 10)
	for i := range chans {
		chans[i] = &fakeChannel{id: string(rune('a' + i))}
		require.NoError(t, r.Connect(chans[i]))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Broadcast(context.Background(), "tick")
		}()
	}
	wg.Wait()

	for _, ch := range chans {
		require.Len(t, ch.received(), 20)
	}
}

func TestClose_ClosesChannelsAndRejectsConnect(t *testing.T) {
	r := newTestRegistry()
	a := &fakeChannel{id: "a"}
	require.NoError(t, r.Connect(a))

	require.NoError(t, r.Close())
	require.Equal(t, 1, a.closed)
	require.Zero(t, r.Len())
	require.ErrorIs(t, r.Connect(&fakeChannel{id: "b"}), ErrClosed)

	require.NoError(t, r.Close())
	require.Equal(t, 1, a.closed)
}
