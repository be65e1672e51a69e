package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_UnsubscribeStopsAndWaits(t *testing.T) {
	var exited atomic.Bool
	h := Go(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		exited.Store(true)
	})

	h.Unsubscribe()
	assert.True(t, exited.Load())

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestHandle_UnsubscribeIsIdempotent(t *testing.T) {
	var cancels atomic.Int32
	h := NewHandle(func() { cancels.Add(1) }, nil)

	h.Unsubscribe()
	h.Unsubscribe()
	h.Unsubscribe()
	assert.Equal(t, int32(1), cancels.Load())
}

func TestGo_ParentCancelEndsListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Go(ctx, func(ctx context.Context) { <-ctx.Done() })
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("listener did not stop with its parent context")
	}
	h.Unsubscribe()
}

func TestListenerFunc(t *testing.T) {
	var l Listener[int] = ListenerFunc[int](func(ctx context.Context, fn func([]int)) (Subscription, error) {
		fn([]int{1, 2})
		return NewHandle(func() {}, nil), nil
	})

	var got []int
	sub, err := l.Listen(context.Background(), func(s []int) { got = s })
	require.NoError(t, err)
	sub.Unsubscribe()
	assert.Equal(t, []int{1, 2}, got)
}
