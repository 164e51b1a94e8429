package building

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftplane/liftplane/core"
)

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input   string
		want    Direction
		wantErr bool
	}{
		{"up", DirectionUp, false},
		{"down", DirectionDown, false},
		{"UP", DirectionUp, false},
		{"Down", DirectionDown, false},
		{"sideways", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrValidation, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewExternalRequestValidation(t *testing.T) {
	r, err := NewExternalRequest(5, DirectionUp, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, RequestPending, r.Status)
	assert.Equal(t, 5, r.Floor)
	assert.Equal(t, KindExternal, r.Kind())

	_, err = NewExternalRequest(0, DirectionUp, 10)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewExternalRequest(11, DirectionUp, 10)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewExternalRequest(5, Direction("left"), 10)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestNewInternalRequestValidation(t *testing.T) {
	r, err := NewInternalRequest(2, 7, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, r.ElevatorID)
	assert.Equal(t, 7, r.DestinationFloor)
	assert.Equal(t, KindInternal, r.Kind())

	_, err = NewInternalRequest(0, 7, 3, 10)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewInternalRequest(4, 7, 3, 10)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewInternalRequest(2, 11, 3, 10)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestExternalRequestFieldsRoundTrip(t *testing.T) {
	r, err := NewExternalRequest(3, DirectionDown, 10)
	require.NoError(t, err)

	fields := make(map[string]string)
	for k, v := range r.Fields() {
		fields[k] = v.(string)
	}

	parsed, err := RequestFromFields(fields)
	require.NoError(t, err)

	external, ok := parsed.(*ExternalRequest)
	require.True(t, ok)
	assert.Equal(t, r.ID, external.ID)
	assert.Equal(t, r.Floor, external.Floor)
	assert.Equal(t, r.Direction, external.Direction)
	assert.Equal(t, r.Status, external.Status)
	assert.WithinDuration(t, r.Timestamp, external.Timestamp, time.Millisecond)
}

func TestInternalRequestFieldsRoundTrip(t *testing.T) {
	r, err := NewInternalRequest(1, 9, 3, 10)
	require.NoError(t, err)

	fields := make(map[string]string)
	for k, v := range r.Fields() {
		fields[k] = v.(string)
	}

	parsed, err := RequestFromFields(fields)
	require.NoError(t, err)

	internal, ok := parsed.(*InternalRequest)
	require.True(t, ok)
	assert.Equal(t, r.ID, internal.ID)
	assert.Equal(t, r.ElevatorID, internal.ElevatorID)
	assert.Equal(t, r.DestinationFloor, internal.DestinationFloor)
}

func TestRequestFromFieldsTolerance(t *testing.T) {
	// missing status defaults to pending, epoch timestamps are accepted
	parsed, err := RequestFromFields(map[string]string{
		"id":           "req-1",
		"request_type": "external",
		"timestamp":    "1700000000.5",
		"floor":        "4",
		"direction":    "UP",
	})
	require.NoError(t, err)

	external := parsed.(*ExternalRequest)
	assert.Equal(t, RequestPending, external.Status)
	assert.Equal(t, DirectionUp, external.Direction)
	assert.Equal(t, int64(1700000000), external.Timestamp.Unix())
}

func TestRequestFromFieldsErrors(t *testing.T) {
	_, err := RequestFromFields(map[string]string{"request_type": "external"})
	assert.ErrorIs(t, err, core.ErrParse)

	_, err = RequestFromFields(map[string]string{
		"id":           "req-2",
		"request_type": "teleport",
	})
	assert.ErrorIs(t, err, core.ErrParse)

	_, err = RequestFromFields(map[string]string{
		"id":           "req-3",
		"request_type": "external",
		"floor":        "not-a-number",
		"direction":    "up",
	})
	assert.ErrorIs(t, err, core.ErrParse)

	_, err = RequestFromFields(map[string]string{
		"id":                "req-4",
		"request_type":      "internal",
		"elevator_id":       "1",
		"destination_floor": "",
	})
	assert.ErrorIs(t, err, core.ErrParse)
}
