// Package stream carries the long-lived sessions between external
// peers and workload channels: the bidirectional terminal bridge and
// the fan-out log hub.
package stream

import (
	"context"
	"io"
	"time"

	"github.com/modix-panel/modix/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultShutdownWindow bounds how long the second pump task may take
// to wind down after the first one ends.
const DefaultShutdownWindow = 5 * time.Second

// Peer is the client side of a bidirectional session. *websocket.Conn
// is adapted through WSPeer; tests substitute in-memory fakes.
type Peer interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// WSPeer adapts a websocket connection to the Peer contract.
type WSPeer struct {
	Conn *websocket.Conn
}

func (p *WSPeer) ReadMessage() ([]byte, error) {
	_, data, err := p.Conn.ReadMessage()
	return data, err
}

func (p *WSPeer) WriteMessage(data []byte) error {
	return p.Conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *WSPeer) Close() error {
	return p.Conn.Close()
}

// Bridge runs one bidirectional session between a peer and a workload
// channel. Two tasks pump the directions independently; a supervisor
// treats peer disconnect, workload exit and explicit close identically
// as "one side ended", cancels the other task and releases both
// endpoints within the shutdown window.
func Bridge(ctx context.Context, peer Peer, wl io.ReadWriteCloser, shutdownWindow time.Duration) {
	if shutdownWindow <= 0 {
		shutdownWindow = DefaultShutdownWindow
	}
	sessionID := uuid.NewString()[:8]
	logger.Debugf("stream %s: session open", sessionID)

	done := make(chan string, 2)

	// Peer to workload: text frames are flushed line-buffered with a
	// trailing newline ensured; an empty frame ends the input channel.
	go func() {
		defer func() { done <- "peer" }()
		for {
			data, err := peer.ReadMessage()
			if err != nil {
				return
			}
			if len(data) == 0 {
				return
			}
			if data[len(data)-1] != '\n' {
				data = append(data, '\n')
			}
			if _, err := wl.Write(data); err != nil {
				return
			}
		}
	}()

	// Workload to peer: output is delivered as received. The single
	// in-flight buffer bounds the read-ahead; a slow peer write pauses
	// the next workload read until it drains.
	go func() {
		defer func() { done <- "workload" }()
		buf := make([]byte, 4096)
		for {
			n, err := wl.Read(buf)
			if n > 0 {
				if werr := peer.WriteMessage(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// Supervisor: first completion wins, the other side is torn down.
	var first string
	select {
	case first = <-done:
	case <-ctx.Done():
		first = "cancel"
	}

	_ = wl.Close()
	_ = peer.Close()

	select {
	case <-done:
	case <-time.After(shutdownWindow):
		logger.Warningf("stream %s: second task did not stop within %s", sessionID, shutdownWindow)
	}
	logger.Debugf("stream %s: session closed (first: %s)", sessionID, first)
}
