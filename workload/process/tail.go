package process

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

const subscriberBuffer = 256

// lineTail receives process output, keeps a bounded ring of recent
// lines and fans complete lines out to subscribers. A subscriber that
// cannot keep up is dropped rather than allowed to stall the process
// pipes.
type lineTail struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
	subs    map[*subscriber]bool
	closed  bool
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max, subs: make(map[*subscriber]bool)}
}

func (t *lineTail) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.partial = append(t.partial, b...)
	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx < 0 {
			break
		}
		line := string(t.partial[:idx])
		t.partial = t.partial[idx+1:]

		if len(t.lines) >= t.max {
			t.lines = t.lines[1:]
		}
		t.lines = append(t.lines, line)

		payload := []byte(line + "\n")
		for sub := range t.subs {
			select {
			case sub.ch <- payload:
			default:
				delete(t.subs, sub)
				close(sub.ch)
			}
		}
	}
	return len(b), nil
}

// snapshot returns up to n recent lines joined, all lines when n <= 0.
func (t *lineTail) snapshot(n int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.lines
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// subscribe registers a new reader; backlog recent lines are replayed
// into its buffer first.
func (t *lineTail) subscribe(backlog int) *subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	if t.closed {
		close(sub.ch)
		return sub
	}

	if backlog != 0 {
		lines := t.lines
		if backlog > 0 && len(lines) > backlog {
			lines = lines[len(lines)-backlog:]
		}
		for _, line := range lines {
			select {
			case sub.ch <- []byte(line + "\n"):
			default:
			}
		}
	}

	t.subs[sub] = true
	return sub
}

func (t *lineTail) unsubscribe(sub *subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.subs[sub] {
		delete(t.subs, sub)
		close(sub.ch)
	}
}

// closeSubscribers ends every live subscription; called on process exit.
func (t *lineTail) closeSubscribers() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for sub := range t.subs {
		close(sub.ch)
	}
	t.subs = make(map[*subscriber]bool)
}

// subscriber adapts the line channel to io.Reader.
type subscriber struct {
	ch  chan []byte
	buf []byte
}

func (s *subscriber) Read(b []byte) (int, error) {
	if len(s.buf) == 0 {
		chunk, ok := <-s.ch
		if !ok {
			return 0, io.EOF
		}
		s.buf = chunk
	}
	n := copy(b, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}
