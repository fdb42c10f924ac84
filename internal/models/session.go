package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Session is the in-memory state of a single draw. Participants are kept in
// join order because results are assigned by that order when the draw starts.
type Session struct {
	ID                string
	Title             string
	ParticipantCount  int
	Participants      []*Participant
	Started           bool
	Results           map[string]string
	SelectedPositions map[int]bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
}

func NewSession(id, title string, participantCount int) *Session {
	now := time.Now()
	return &Session{
		ID:                id,
		Title:             title,
		ParticipantCount:  participantCount,
		Participants:      []*Participant{},
		Results:           make(map[string]string),
		SelectedPositions: make(map[int]bool),
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
}

// Participant returns the participant with the given id, or nil.
func (s *Session) Participant(participantID string) *Participant {
	for _, p := range s.Participants {
		if p.ID == participantID {
			return p
		}
	}
	return nil
}

// Touch bumps the activity timestamp without counting as a content mutation.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// Bump marks a content mutation: activity timestamp plus the optimistic
// concurrency version checked when writing back to the durable store.
func (s *Session) Bump() {
	s.UpdatedAt = time.Now()
	s.Version++
}

// PositionsList returns the claimed positions in ascending order.
func (s *Session) PositionsList() []int {
	positions := make([]int, 0, len(s.SelectedPositions))
	for pos := range s.SelectedPositions {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

// SessionSnapshot is the client-facing view of a session, returned on GET and
// sent as the initial event of a stream.
type SessionSnapshot struct {
	ID                string            `json:"id"`
	Title             string            `json:"title,omitempty"`
	ParticipantCount  int               `json:"participantCount"`
	Participants      []Participant     `json:"participants"`
	Started           bool              `json:"started"`
	SelectedPositions []int             `json:"selectedPositions"`
	Results           map[string]string `json:"results,omitempty"`
}

// Snapshot copies the session into its client-facing view. Results are only
// included once the draw has started.
func (s *Session) Snapshot() *SessionSnapshot {
	snap := &SessionSnapshot{
		ID:                s.ID,
		Title:             s.Title,
		ParticipantCount:  s.ParticipantCount,
		Participants:      make([]Participant, len(s.Participants)),
		Started:           s.Started,
		SelectedPositions: s.PositionsList(),
	}
	for i, p := range s.Participants {
		snap.Participants[i] = *p
	}
	if s.Started {
		snap.Results = make(map[string]string, len(s.Results))
		for id, label := range s.Results {
			snap.Results[id] = label
		}
	}
	return snap
}

// participantEntry serializes as a two-element array [id, participant] so the
// persisted record preserves join order.
type participantEntry struct {
	ID          string
	Participant *Participant
}

func (e participantEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.ID, e.Participant})
}

func (e *participantEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("participant entry: expected [id, participant], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.ID); err != nil {
		return err
	}
	e.Participant = &Participant{}
	return json.Unmarshal(raw[1], e.Participant)
}

// resultEntry serializes as [participantId, label].
type resultEntry struct {
	ID    string
	Label string
}

func (e resultEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{e.ID, e.Label})
}

func (e *resultEntry) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("result entry: expected [id, label], got %d elements", len(raw))
	}
	e.ID, e.Label = raw[0], raw[1]
	return nil
}

// sessionRecord is the durable-store / file layout of a session.
type sessionRecord struct {
	ID                string             `json:"id"`
	Title             string             `json:"title,omitempty"`
	ParticipantCount  int                `json:"participantCount"`
	Participants      []participantEntry `json:"participants"`
	Started           bool               `json:"started"`
	Results           []resultEntry      `json:"results"`
	SelectedPositions []int              `json:"selectedPositions"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
	Version           int64              `json:"version"`
}

// Encode serializes the session into its persisted record layout.
func (s *Session) Encode() ([]byte, error) {
	rec := sessionRecord{
		ID:                s.ID,
		Title:             s.Title,
		ParticipantCount:  s.ParticipantCount,
		Participants:      make([]participantEntry, len(s.Participants)),
		Started:           s.Started,
		Results:           make([]resultEntry, 0, len(s.Results)),
		SelectedPositions: s.PositionsList(),
		CreatedAt:         s.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         s.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Version:           s.Version,
	}
	for i, p := range s.Participants {
		rec.Participants[i] = participantEntry{ID: p.ID, Participant: p}
	}
	// Results follow participant join order so the record is stable.
	for _, p := range s.Participants {
		if label, ok := s.Results[p.ID]; ok {
			rec.Results = append(rec.Results, resultEntry{ID: p.ID, Label: label})
		}
	}
	return json.Marshal(rec)
}

// DecodeSession rebuilds a session from its persisted record layout.
func DecodeSession(data []byte) (*Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode session createdAt: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode session updatedAt: %w", err)
	}

	s := &Session{
		ID:                rec.ID,
		Title:             rec.Title,
		ParticipantCount:  rec.ParticipantCount,
		Participants:      make([]*Participant, len(rec.Participants)),
		Started:           rec.Started,
		Results:           make(map[string]string, len(rec.Results)),
		SelectedPositions: make(map[int]bool, len(rec.SelectedPositions)),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
		Version:           rec.Version,
	}
	for i, e := range rec.Participants {
		p := e.Participant
		p.ID = e.ID
		s.Participants[i] = p
	}
	for _, e := range rec.Results {
		s.Results[e.ID] = e.Label
	}
	for _, pos := range rec.SelectedPositions {
		s.SelectedPositions[pos] = true
	}
	return s, nil
}

// RecordVersion extracts just the version counter from a persisted record,
// for the optimistic-concurrency check without a full decode.
func RecordVersion(data []byte) (int64, error) {
	var rec struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, err
	}
	return rec.Version, nil
}
