package stream

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *fakePeer) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-p.in:
		if !ok {
			return nil, errors.New("peer gone")
		}
		return data, nil
	case <-p.closed:
		return nil, errors.New("peer closed")
	}
}

func (p *fakePeer) WriteMessage(data []byte) error {
	select {
	case p.out <- append([]byte(nil), data...):
		return nil
	case <-p.closed:
		return errors.New("peer closed")
	}
}

func (p *fakePeer) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePeer) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

type fakeWorkload struct {
	out chan []byte

	mu      sync.Mutex
	written bytes.Buffer

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeWorkload() *fakeWorkload {
	return &fakeWorkload{
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (w *fakeWorkload) Read(b []byte) (int, error) {
	select {
	case data := <-w.out:
		return copy(b, data), nil
	case <-w.closed:
		return 0, errors.New("workload gone")
	}
}

func (w *fakeWorkload) Write(b []byte) (int, error) {
	select {
	case <-w.closed:
		return 0, errors.New("workload gone")
	default:
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written.Write(b)
}

func (w *fakeWorkload) Close() error {
	w.closeOnce.Do(func() { close(w.closed) })
	return nil
}

func (w *fakeWorkload) isClosed() bool {
	select {
	case <-w.closed:
		return true
	default:
		return false
	}
}

func (w *fakeWorkload) writtenString() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written.String()
}

func runBridge(t *testing.T, peer Peer, wl *fakeWorkload) chan struct{} {
	t.Helper()
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		defer close(done)
		Bridge(ctx, peer, wl, time.Second)
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not terminate")
	}
}

func TestBridgePeerDisconnectTearsDownWorkload(t *testing.T) {
	peer := newFakePeer()
	wl := newFakeWorkload()
	done := runBridge(t, peer, wl)

	peer.Close()

	waitDone(t, done)
	assert.True(t, wl.isClosed())
}

func TestBridgeWorkloadExitTearsDownPeer(t *testing.T) {
	peer := newFakePeer()
	wl := newFakeWorkload()
	done := runBridge(t, peer, wl)

	wl.Close()

	waitDone(t, done)
	assert.True(t, peer.isClosed())
}

func TestBridgeAppendsTrailingNewline(t *testing.T) {
	peer := newFakePeer()
	wl := newFakeWorkload()
	done := runBridge(t, peer, wl)

	peer.in <- []byte("say hello")
	peer.in <- []byte("stop\n")

	require.Eventually(t, func() bool {
		return wl.writtenString() == "say hello\nstop\n"
	}, 2*time.Second, 10*time.Millisecond)

	peer.Close()
	waitDone(t, done)
}

func TestBridgeEmptyFrameEndsSession(t *testing.T) {
	peer := newFakePeer()
	wl := newFakeWorkload()
	done := runBridge(t, peer, wl)

	peer.in <- []byte{}

	waitDone(t, done)
	assert.True(t, wl.isClosed())
	assert.True(t, peer.isClosed())
}

func TestBridgeForwardsWorkloadOutput(t *testing.T) {
	peer := newFakePeer()
	wl := newFakeWorkload()
	done := runBridge(t, peer, wl)

	wl.out <- []byte("[Server] ready\n")

	select {
	case frame := <-peer.out:
		assert.Equal(t, "[Server] ready\n", string(frame))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame forwarded")
	}

	peer.Close()
	waitDone(t, done)
}
