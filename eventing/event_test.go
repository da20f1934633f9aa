package eventing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
}

func TestEvent_CreateEnvelope(t *testing.T) {
	ev := NewCreateEvent(7, item{ProductID: 7, Name: "n"})

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "CREATE", m["eventType"])
	assert.Equal(t, float64(7), m["key"])
	assert.Equal(t, map[string]any{"productId": float64(7), "name": "n"}, m["data"])
	created, err := time.Parse(time.RFC3339Nano, m["eventCreatedAt"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
}

func TestEvent_DeleteHasNullData(t *testing.T) {
	ev := NewDeleteEvent[int, item](9)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "DELETE", m["eventType"])
	v, present := m["data"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestEvent_Envelope(t *testing.T) {
	var env Envelope = NewDeleteEvent[int, item](42)

	assert.Equal(t, EventDelete, env.EventType())
	assert.Equal(t, "42", env.PartitionKey())
	assert.False(t, env.Timestamp().IsZero())
}

func TestEvent_RoundTrip(t *testing.T) {
	ev := NewCreateEvent(3, item{ProductID: 3, Name: "x"})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded Event[int, item]
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, ev.Type, decoded.Type)
	assert.Equal(t, ev.Key, decoded.Key)
	assert.Equal(t, *ev.Data, *decoded.Data)
	assert.True(t, ev.CreatedAt.Equal(decoded.CreatedAt))
}
