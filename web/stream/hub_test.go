package stream

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/modix-panel/modix/util/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeHub(t *testing.T) (*Hub, *io.PipeWriter) {
	t.Helper()
	pr, pw := io.Pipe()
	hub := NewHub(func(_ context.Context, workloadID string) (io.ReadCloser, error) {
		if workloadID != "w1" {
			return nil, common.New(common.KindNotFound, "no such workload %s", workloadID)
		}
		return pr, nil
	})
	t.Cleanup(func() { pw.Close() })
	return hub, pw
}

func collect(ch <-chan Line, n int, timeout time.Duration) []Line {
	lines := make([]Line, 0, n)
	deadline := time.After(timeout)
	for len(lines) < n {
		select {
		case line, ok := <-ch:
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-deadline:
			return lines
		}
	}
	return lines
}

func TestHubSubscribeUnknownWorkload(t *testing.T) {
	hub, _ := newPipeHub(t)

	_, _, err := hub.Subscribe("nope")
	require.Error(t, err)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestHubFansOutOrderedLines(t *testing.T) {
	hub, pw := newPipeHub(t)

	a, cancelA, err := hub.Subscribe("w1")
	require.NoError(t, err)
	defer cancelA()
	b, cancelB, err := hub.Subscribe("w1")
	require.NoError(t, err)
	defer cancelB()

	go func() {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(pw, "line %d\n", i)
		}
	}()

	linesA := collect(a, 5, 2*time.Second)
	linesB := collect(b, 5, 2*time.Second)
	require.Len(t, linesA, 5)
	require.Len(t, linesB, 5)

	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("line %d", i), linesA[i].Text)
		assert.Equal(t, linesA[i].Seq, linesB[i].Seq)
		if i > 0 {
			assert.Equal(t, linesA[i-1].Seq+1, linesA[i].Seq)
		}
	}
}

func TestHubSourceEndClosesSubscribers(t *testing.T) {
	hub, pw := newPipeHub(t)

	ch, cancel, err := hub.Subscribe("w1")
	require.NoError(t, err)
	defer cancel()

	fmt.Fprintln(pw, "bye")
	pw.Close()

	lines := collect(ch, 1, 2*time.Second)
	require.Len(t, lines, 1)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub, pw := newPipeHub(t)

	slow, cancelSlow, err := hub.Subscribe("w1")
	require.NoError(t, err)
	defer cancelSlow()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the subscriber backlog without anyone reading.
		for i := 0; i < subscriberBacklog+10; i++ {
			fmt.Fprintf(pw, "flood %d\n", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher stalled behind a slow subscriber")
	}

	// The slow subscriber was shed: its channel closes after at most a
	// full backlog of lines.
	drained := collect(slow, subscriberBacklog+10, 2*time.Second)
	assert.LessOrEqual(t, len(drained), subscriberBacklog)
}

func TestHubSurvivesFirstSubscriberLeaving(t *testing.T) {
	pr, pw := io.Pipe()
	var sourceCtx context.Context
	hub := NewHub(func(ctx context.Context, _ string) (io.ReadCloser, error) {
		sourceCtx = ctx
		return pr, nil
	})
	t.Cleanup(func() { pw.Close() })

	a, cancelA, err := hub.Subscribe("w1")
	require.NoError(t, err)
	b, cancelB, err := hub.Subscribe("w1")
	require.NoError(t, err)
	defer cancelB()

	fmt.Fprintln(pw, "line 1")
	require.Len(t, collect(a, 1, 2*time.Second), 1)
	require.Len(t, collect(b, 1, 2*time.Second), 1)

	// The subscriber that caused the source to open leaves; the tail and
	// the remaining subscriber keep going.
	cancelA()

	fmt.Fprintln(pw, "line 2")
	lines := collect(b, 1, 2*time.Second)
	require.Len(t, lines, 1)
	assert.Equal(t, "line 2", lines[0].Text)
	assert.NoError(t, sourceCtx.Err())
}

func TestHubLastUnsubscribeReleasesSource(t *testing.T) {
	hub, pw := newPipeHub(t)

	ch, cancel, err := hub.Subscribe("w1")
	require.NoError(t, err)

	fmt.Fprintln(pw, "hello")
	require.Len(t, collect(ch, 1, 2*time.Second), 1)

	cancel()

	// The source pipe is closed once the last subscriber leaves, so the
	// next write fails.
	require.Eventually(t, func() bool {
		_, err := fmt.Fprintln(pw, "anyone")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}
