package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftplane/liftplane/building"
	"github.com/liftplane/liftplane/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, &core.NoOpLogger{})
}

func TestGetSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "greeting", "hello"))

	val, err := s.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", val)
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestJSONHelpers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := building.NewElevator(2, 4)
	e.AddDestination(7)
	require.NoError(t, s.SetJSON(ctx, "elevator:status:2", e))

	var restored building.Elevator
	require.NoError(t, s.GetJSON(ctx, "elevator:status:2", &restored))
	assert.Equal(t, 2, restored.ID)
	assert.Equal(t, 4, restored.CurrentFloor)
	assert.Equal(t, []int{7}, restored.Destinations)
}

func TestGetJSONMalformed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "broken", "{not json"))

	var dest map[string]interface{}
	err := s.GetJSON(ctx, "broken", &dest)
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestExistsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v"))

	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "k"))
	// deleting again is a no-op
	require.NoError(t, s.Delete(ctx, "k"))

	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
