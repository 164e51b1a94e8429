package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftplane/liftplane/broker"
	"github.com/liftplane/liftplane/building"
	"github.com/liftplane/liftplane/core"
	"github.com/liftplane/liftplane/store"
)

func TestScoreIdleElevator(t *testing.T) {
	e := building.NewElevator(1, 1)

	// distance minus the idle bonus
	assert.Equal(t, 1.0, scoreElevator(e, 3, building.DirectionUp))
	assert.Equal(t, -1.0, scoreElevator(e, 1, building.DirectionUp))
}

func TestScoreMovingOnTheWay(t *testing.T) {
	e := building.NewElevator(2, 4)
	e.AddDestination(8)
	e.BeginTravel(8)

	// moving up toward a floor above it, same requested direction
	assert.InDelta(t, 1.6, scoreElevator(e, 6, building.DirectionUp), 1e-9)
	// requested direction differs
	assert.InDelta(t, 10.0, scoreElevator(e, 6, building.DirectionDown), 1e-9)
	// floor is behind the car
	assert.InDelta(t, 10.0, scoreElevator(e, 2, building.DirectionUp), 1e-9)
}

func TestScoreMovingDown(t *testing.T) {
	e := building.NewElevator(1, 5)
	e.AddDestination(1)
	e.BeginTravel(1)

	assert.InDelta(t, 1.6, scoreElevator(e, 3, building.DirectionDown), 1e-9)
	assert.InDelta(t, 10.0, scoreElevator(e, 7, building.DirectionUp), 1e-9)
}

func TestSelectBestElevatorTieBreaksLowestID(t *testing.T) {
	s := New(Config{ID: "1", Elevators: 3, Floors: 10}, nil, nil, nil, nil)
	s.states = map[int]*building.Elevator{
		1: building.NewElevator(1, 1),
		2: building.NewElevator(2, 5),
		3: building.NewElevator(3, 9),
	}

	// elevators 1 and 2 both score 1.0 for floor 3; the lower id wins
	id, ok := s.selectBestElevator(3, building.DirectionUp)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestSelectBestElevatorPrefersOnTheWay(t *testing.T) {
	idle := building.NewElevator(1, 1)
	moving := building.NewElevator(2, 4)
	moving.AddDestination(8)
	moving.BeginTravel(8)

	s := New(Config{ID: "1", Elevators: 2, Floors: 10}, nil, nil, nil, nil)
	s.states = map[int]*building.Elevator{1: idle, 2: moving}

	// idle at 1 scores 4.0 for floor 6; the car passing by scores 1.6
	id, ok := s.selectBestElevator(6, building.DirectionUp)
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestSelectBestElevatorAvoidsWrongWay(t *testing.T) {
	away := building.NewElevator(1, 5)
	away.AddDestination(1)
	away.BeginTravel(1)
	idle := building.NewElevator(2, 10)

	s := New(Config{ID: "1", Elevators: 2, Floors: 10}, nil, nil, nil, nil)
	s.states = map[int]*building.Elevator{1: away, 2: idle}

	// the car moving away from floor 7 scores 10.0; the distant idle car 2.0
	id, ok := s.selectBestElevator(7, building.DirectionUp)
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestSelectBestElevatorNoSnapshots(t *testing.T) {
	s := New(Config{ID: "1", Elevators: 3, Floors: 10}, nil, nil, nil, nil)

	_, ok := s.selectBestElevator(3, building.DirectionUp)
	assert.False(t, ok)
}

func TestProcessDiscardsMalformedEntry(t *testing.T) {
	s := New(Config{ID: "1", Elevators: 3, Floors: 10}, nil, nil, nil, nil)

	err := s.process(context.Background(), broker.Entry{
		ID:     "1-0",
		Fields: map[string]string{"request_type": "external"},
	})
	assert.NoError(t, err)
}

type schedulerFixture struct {
	rdb    *redis.Client
	stream *broker.Stream
	bus    *broker.PubSub
	store  *store.Store
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := &core.NoOpLogger{}
	return &schedulerFixture{
		rdb:    rdb,
		stream: broker.NewStream(rdb, logger),
		bus:    broker.NewPubSub(rdb, logger),
		store:  store.New(rdb, logger),
	}
}

func (f *schedulerFixture) seedElevator(t *testing.T, e *building.Elevator) {
	t.Helper()
	require.NoError(t, f.store.SetJSON(context.Background(), core.StatusKey(e.ID), e))
}

// preCreateGroup makes the consumer group start at the beginning so entries
// published before the scheduler starts are still delivered as new
func (f *schedulerFixture) preCreateGroup(t *testing.T) {
	t.Helper()
	require.NoError(t, f.stream.CreateGroup(context.Background(), core.RequestsStream, core.SchedulerGroup, "0"))
}

func (f *schedulerFixture) publishRequest(t *testing.T, fields map[string]interface{}) string {
	t.Helper()
	id, err := f.stream.Publish(context.Background(), core.RequestsStream, fields)
	require.NoError(t, err)
	return id
}

func waitForCommand(t *testing.T, sub *broker.Subscription) building.Command {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		cmd, err := building.DecodeCommand([]byte(msg.Payload))
		require.NoError(t, err)
		return cmd
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
		return building.Command{}
	}
}

func (f *schedulerFixture) pendingCount(t *testing.T) int64 {
	t.Helper()
	info, err := f.rdb.XPending(context.Background(), core.RequestsStream, core.SchedulerGroup).Result()
	require.NoError(t, err)
	return info.Count
}

func TestRunAssignsExternalRequest(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.seedElevator(t, building.NewElevator(1, 1))
	f.seedElevator(t, building.NewElevator(2, 9))
	f.preCreateGroup(t)

	sub, err := f.bus.Subscribe(ctx, core.CommandTopic(1))
	require.NoError(t, err)
	defer sub.Close()

	request, err := building.NewExternalRequest(3, building.DirectionUp, 10)
	require.NoError(t, err)
	f.publishRequest(t, request.Fields())

	s := New(Config{ID: "1", Elevators: 2, Floors: 10}, f.stream, f.bus, f.store, &core.NoOpLogger{})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cmd := waitForCommand(t, sub)
	assert.Equal(t, building.CommandGoToFloor, cmd.Command)
	assert.Equal(t, 3, cmd.Floor)
	assert.Equal(t, request.ID, cmd.RequestID)
	assert.Equal(t, request.ID, cmd.CorrelationID)

	// the entry is acknowledged once handled
	require.Eventually(t, func() bool {
		return f.pendingCount(t) == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunRoutesInternalRequestToItsElevator(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the cabin's elevator is busy moving away; internal requests bypass scoring
	busy := building.NewElevator(2, 5)
	busy.AddDestination(1)
	busy.BeginTravel(1)
	f.seedElevator(t, building.NewElevator(1, 1))
	f.seedElevator(t, busy)
	f.preCreateGroup(t)

	sub, err := f.bus.Subscribe(ctx, core.CommandTopic(2))
	require.NoError(t, err)
	defer sub.Close()

	request, err := building.NewInternalRequest(2, 7, 2, 10)
	require.NoError(t, err)
	f.publishRequest(t, request.Fields())

	s := New(Config{ID: "1", Elevators: 2, Floors: 10}, f.stream, f.bus, f.store, &core.NoOpLogger{})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cmd := waitForCommand(t, sub)
	assert.Equal(t, building.CommandAddDestination, cmd.Command)
	assert.Equal(t, 7, cmd.Floor)
	assert.Equal(t, request.ID, cmd.RequestID)

	cancel()
	require.NoError(t, <-done)
}

func TestRunReplaysPendingBacklogOnRestart(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.seedElevator(t, building.NewElevator(1, 1))
	f.preCreateGroup(t)

	first, err := building.NewExternalRequest(3, building.DirectionUp, 10)
	require.NoError(t, err)
	second, err := building.NewExternalRequest(5, building.DirectionUp, 10)
	require.NoError(t, err)
	f.publishRequest(t, first.Fields())
	f.publishRequest(t, second.Fields())

	// simulate a previous incarnation that read both entries and crashed
	// before acknowledging
	_, err = f.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    core.SchedulerGroup,
		Consumer: "scheduler-1",
		Streams:  []string{core.RequestsStream, ">"},
		Count:    10,
		Block:    -1,
	}).Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), f.pendingCount(t))

	sub, err := f.bus.Subscribe(ctx, core.CommandTopic(1))
	require.NoError(t, err)
	defer sub.Close()

	s := New(Config{ID: "1", Elevators: 1, Floors: 10}, f.stream, f.bus, f.store, &core.NoOpLogger{})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	got := []int{waitForCommand(t, sub).Floor, waitForCommand(t, sub).Floor}
	assert.Equal(t, []int{3, 5}, got, "backlog replays in stream order")

	require.Eventually(t, func() bool {
		return f.pendingCount(t) == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunInitializesMissingSnapshots(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Config{ID: "1", Elevators: 2, Floors: 10}, f.stream, f.bus, f.store, &core.NoOpLogger{})
	require.NoError(t, s.loadElevatorStates(ctx))

	for id := 1; id <= 2; id++ {
		var e building.Elevator
		require.NoError(t, f.store.GetJSON(ctx, core.StatusKey(id), &e))
		assert.Equal(t, id, e.ID)
		assert.Equal(t, 1, e.CurrentFloor)
		assert.Equal(t, building.StatusIdle, e.Status)
	}
}
