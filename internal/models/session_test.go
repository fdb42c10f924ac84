package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *Session {
	s := NewSession("ABC123", "Office lottery", 3)
	s.Participants = []*Participant{
		{ID: "p1", Name: "Alice", Position: 2, Ready: true},
		{ID: "p2", Name: "Bob", Position: 1, Ready: true},
		{ID: "p3", Name: "Carol", Position: 3, Ready: true},
	}
	s.SelectedPositions = map[int]bool{1: true, 2: true, 3: true}
	s.Started = true
	s.Results = map[string]string{"p1": "B", "p2": "A", "p3": "C"}
	for _, p := range s.Participants {
		p.Result = s.Results[p.ID]
	}
	s.Version = 7
	return s
}

func TestSessionEncodeDecodeRoundTrip(t *testing.T) {
	original := testSession()

	data, err := original.Encode()
	require.NoError(t, err)

	decoded, err := DecodeSession(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Title, decoded.Title)
	assert.Equal(t, original.ParticipantCount, decoded.ParticipantCount)
	assert.Equal(t, original.Started, decoded.Started)
	assert.Equal(t, original.Results, decoded.Results)
	assert.Equal(t, original.SelectedPositions, decoded.SelectedPositions)
	assert.Equal(t, original.Version, decoded.Version)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.True(t, original.UpdatedAt.Equal(decoded.UpdatedAt))

	require.Len(t, decoded.Participants, len(original.Participants))
	for i, p := range original.Participants {
		assert.Equal(t, *p, *decoded.Participants[i], "participant %d", i)
	}
}

func TestSessionEncodePreservesJoinOrder(t *testing.T) {
	s := testSession()

	data, err := s.Encode()
	require.NoError(t, err)

	decoded, err := DecodeSession(data)
	require.NoError(t, err)

	ids := make([]string, len(decoded.Participants))
	for i, p := range decoded.Participants {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids)
}

func TestSessionRecordLayout(t *testing.T) {
	s := testSession()

	data, err := s.Encode()
	require.NoError(t, err)

	var rec map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &rec))

	// participants and results are stored as [id, value] pair lists
	var participants [][]json.RawMessage
	require.NoError(t, json.Unmarshal(rec["participants"], &participants))
	require.Len(t, participants, 3)
	require.Len(t, participants[0], 2)

	var results [][]string
	require.NoError(t, json.Unmarshal(rec["results"], &results))
	assert.Len(t, results, 3)

	var positions []int
	require.NoError(t, json.Unmarshal(rec["selectedPositions"], &positions))
	assert.Equal(t, []int{1, 2, 3}, positions)

	var createdAt string
	require.NoError(t, json.Unmarshal(rec["createdAt"], &createdAt))
	_, err = time.Parse(time.RFC3339Nano, createdAt)
	assert.NoError(t, err)
}

func TestSnapshotCopiesState(t *testing.T) {
	s := testSession()

	snap := s.Snapshot()
	require.Len(t, snap.Participants, 3)
	assert.Equal(t, []int{1, 2, 3}, snap.SelectedPositions)
	assert.Equal(t, s.Results, snap.Results)

	// Mutating the snapshot must not touch the session.
	snap.Participants[0].Name = "changed"
	snap.Results["p1"] = "Z"
	assert.Equal(t, "Alice", s.Participants[0].Name)
	assert.Equal(t, "B", s.Results["p1"])
}

func TestSnapshotHidesResultsBeforeStart(t *testing.T) {
	s := NewSession("XYZ789", "", 2)
	s.Participants = []*Participant{{ID: "p1", Name: "Alice", Position: 1}}
	s.SelectedPositions = map[int]bool{1: true}

	snap := s.Snapshot()
	assert.False(t, snap.Started)
	assert.Nil(t, snap.Results)
}

func TestBumpIncrementsVersion(t *testing.T) {
	s := NewSession("ABC123", "", 2)
	require.EqualValues(t, 1, s.Version)

	before := s.UpdatedAt
	s.Bump()
	assert.EqualValues(t, 2, s.Version)
	assert.False(t, s.UpdatedAt.Before(before))

	s.Touch()
	assert.EqualValues(t, 2, s.Version, "touch must not bump the version")
}
