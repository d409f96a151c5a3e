package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(10 * time.Millisecond)

	require.NoError(t, s.Add(ctx, "evt-1"))
	seen, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	time.Sleep(20 * time.Millisecond)
	seen, _ = s.Contains(ctx, "evt-1")
	assert.False(t, seen)
	assert.Equal(t, 0, s.Len())
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	s := NewRedisIdempotencyStore(client, "review:processed", time.Hour)

	seen, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, "evt-1"))
	seen, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("review:processed:evt-1"))

	mr.FastForward(2 * time.Hour)
	seen, _ = s.Contains(ctx, "evt-1")
	assert.False(t, seen)
}

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Hour)

	var calls int
	fail := true
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("transient")
		}
		return nil
	}, newTestLogger())

	event := &Event{EventID: "evt-7", EventType: "review_section.recalculate_requested"}

	require.Error(t, h(ctx, event))
	fail = false
	require.NoError(t, h(ctx, event))
	require.NoError(t, h(ctx, event))
	assert.Equal(t, 2, calls)

	require.NoError(t, h(ctx, &Event{EventType: "no-id"}))
	require.NoError(t, h(ctx, &Event{EventType: "no-id"}))
	assert.Equal(t, 4, calls)
}
