package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()

	var first, second [][]byte
	unsubFirst := hub.Subscribe("S1", func(m []byte) { first = append(first, m) })
	defer unsubFirst()
	unsubSecond := hub.Subscribe("S1", func(m []byte) { second = append(second, m) })
	defer unsubSecond()

	hub.Broadcast("S1", "participant-joined", map[string]string{"participantId": "p1"})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0], second[0], "all subscribers receive the same serialized payload")

	var event Event
	require.NoError(t, json.Unmarshal(first[0], &event))
	assert.Equal(t, "participant-joined", event.Event)
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Minute)
}

func TestHubBroadcastScopedToSession(t *testing.T) {
	hub := NewHub()

	var got int
	unsub := hub.Subscribe("S1", func([]byte) { got++ })
	defer unsub()

	hub.Broadcast("S2", "participant-ready", nil)
	assert.Zero(t, got)

	hub.Broadcast("S1", "participant-ready", nil)
	assert.Equal(t, 1, got)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()

	var got int
	unsub := hub.Subscribe("S1", func([]byte) { got++ })

	hub.Broadcast("S1", "participant-ready", nil)
	require.Equal(t, 1, got)

	unsub()
	hub.Broadcast("S1", "participant-ready", nil)
	assert.Equal(t, 1, got)

	// A second unsubscribe is a no-op.
	unsub()
	assert.Zero(t, hub.SubscriberCount("S1"))
}

func TestHubPanickingSubscriberIsIsolated(t *testing.T) {
	hub := NewHub()

	unsubBad := hub.Subscribe("S1", func([]byte) { panic("boom") })
	defer unsubBad()

	var got int
	unsubGood := hub.Subscribe("S1", func([]byte) { got++ })
	defer unsubGood()

	hub.Broadcast("S1", "session-started", nil)
	assert.Equal(t, 1, got, "a panicking subscriber must not block the others")
}

func TestHubRemoveSession(t *testing.T) {
	hub := NewHub()

	hub.EnsureSession("S1")
	unsub := hub.Subscribe("S1", func([]byte) { t.Fatal("must not deliver after removal") })
	defer unsub()

	hub.RemoveSession("S1")
	assert.Zero(t, hub.SubscriberCount("S1"))
	hub.Broadcast("S1", "session-started", nil)
}

func TestHubLateSubscriberMissesEarlierBroadcasts(t *testing.T) {
	hub := NewHub()

	hub.EnsureSession("S1")
	hub.Broadcast("S1", "participant-joined", nil)

	var got int
	unsub := hub.Subscribe("S1", func([]byte) { got++ })
	defer unsub()

	assert.Zero(t, got, "no retroactive delivery")
}
