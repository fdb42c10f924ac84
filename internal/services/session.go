package services

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/best07008/kujibiki/internal/metrics"
	"github.com/best07008/kujibiki/internal/models"
	"github.com/best07008/kujibiki/internal/store"
	"github.com/best07008/kujibiki/internal/ws"
)

// Join failure codes, stable across the API.
const (
	CodeSessionNotFound         = "SESSION_NOT_FOUND"
	CodeParticipantLimitReached = "PARTICIPANT_LIMIT_REACHED"
	CodeInvalidPosition         = "INVALID_POSITION"
	CodePositionAlreadyTaken    = "POSITION_ALREADY_TAKEN"
)

// Stream event names.
const (
	EventSessionState      = "session-state"
	EventParticipantJoined = "participant-joined"
	EventParticipantReady  = "participant-ready"
	EventSessionStarted    = "session-started"
)

const (
	MaxParticipants = 100

	sessionKeyPrefix = "session:"
	sessionIDChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	sessionIDLength  = 6

	persistMaxRetries = 2
)

var ErrInvalidParticipantCount = errors.New("participant count must be between 1 and 100")

// ErrVersionConflict is reported when write-back finds a newer record in the
// durable store. The save is rejected; it is never repaired automatically.
var ErrVersionConflict = errors.New("session version conflict")

// JoinError carries the machine-readable failure code of a rejected join.
type JoinError struct {
	Code    string
	Message string
}

func (e *JoinError) Error() string {
	return e.Message
}

// SessionManagerOptions tune the manager's expiry and persistence behavior.
type SessionManagerOptions struct {
	TTL              time.Duration // expiry window for idle sessions
	SweepInterval    time.Duration
	PersistQueueSize int
}

type persistJob struct {
	sessionID string
	data      []byte
	version   int64
}

// SessionManager owns the process-wide session registry and drives the
// Forming -> Started state machine. Reads fall through registry -> durable
// store -> file fallback; writes go the other way, best effort.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	kv    store.Store
	files *store.FileStore
	hub   *ws.Hub

	ttl           time.Duration
	sweepInterval time.Duration

	persistCh chan persistJob
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

func NewSessionManager(kv store.Store, files *store.FileStore, hub *ws.Hub, opts SessionManagerOptions) *SessionManager {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	if opts.PersistQueueSize <= 0 {
		opts.PersistQueueSize = 256
	}
	return &SessionManager{
		sessions:      make(map[string]*models.Session),
		kv:            kv,
		files:         files,
		hub:           hub,
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		persistCh:     make(chan persistJob, opts.PersistQueueSize),
		done:          make(chan struct{}),
	}
}

// Start launches the persist worker and the expiry sweep.
func (m *SessionManager) Start() {
	m.wg.Add(2)
	go m.persistLoop()
	go m.sweepLoop()
}

// Stop terminates the background goroutines. In-flight persist jobs may be
// dropped; that is within the best-effort contract.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// CreateSession allocates a fresh session in the Forming state and registers
// an empty subscriber set for it. Persistence is fire-and-forget: a store
// failure is logged but never fails the call, since the in-memory copy stays
// authoritative for this process.
func (m *SessionManager) CreateSession(ctx context.Context, participantCount int, title string) (string, error) {
	if participantCount < 1 || participantCount > MaxParticipants {
		return "", ErrInvalidParticipantCount
	}

	sessionID := m.newSessionID(ctx)
	session := models.NewSession(sessionID, title, participantCount)

	m.mu.Lock()
	m.sessions[sessionID] = session
	job, encodeErr := m.persistJobLocked(session)
	m.mu.Unlock()

	m.hub.EnsureSession(sessionID)
	metrics.SessionsActive.Inc()
	metrics.SessionsCreatedTotal.Inc()
	log.Printf("[SessionManager] created session %s (capacity %d)", sessionID, participantCount)

	if encodeErr != nil {
		log.Printf("[SessionManager] encode session %s: %v", sessionID, encodeErr)
	} else {
		m.enqueuePersist(job)
	}
	return sessionID, nil
}

// newSessionID draws short random ids until one is free in both the registry
// and the durable store. The id space is small but ample for live sessions.
func (m *SessionManager) newSessionID(ctx context.Context) string {
	for {
		id := make([]byte, sessionIDLength)
		for i := range id {
			id[i] = sessionIDChars[rand.Intn(len(sessionIDChars))]
		}
		sessionID := string(id)

		m.mu.RLock()
		_, taken := m.sessions[sessionID]
		m.mu.RUnlock()
		if taken {
			continue
		}
		if exists, err := m.kv.Exists(ctx, sessionKeyPrefix+sessionID); err == nil && exists {
			continue
		}
		return sessionID
	}
}

// GetSession returns the client-facing snapshot of a session, or false if it
// is unknown everywhere.
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*models.SessionSnapshot, bool) {
	session := m.getSession(ctx, sessionID)
	if session == nil {
		return nil, false
	}

	m.mu.RLock()
	snap := session.Snapshot()
	m.mu.RUnlock()
	return snap, true
}

// getSession is the read-through lookup: registry first, then the durable
// store, then the file fallback. A hit from either backing store populates
// the registry and subscriber set; content is never mutated here.
func (m *SessionManager) getSession(ctx context.Context, sessionID string) *models.Session {
	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return session
	}

	loaded := m.loadSession(ctx, sessionID)
	if loaded == nil {
		return nil
	}

	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		// Lost the race to another request; keep the registered copy.
		m.mu.Unlock()
		return existing
	}
	m.sessions[sessionID] = loaded
	m.mu.Unlock()

	m.hub.EnsureSession(sessionID)
	metrics.SessionsActive.Inc()
	log.Printf("[SessionManager] restored session %s from store", sessionID)
	return loaded
}

func (m *SessionManager) loadSession(ctx context.Context, sessionID string) *models.Session {
	data, err := m.kv.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		log.Printf("[SessionManager] load session %s from store: %v", sessionID, err)
	}
	if data == nil {
		fileData, fileErr := m.files.Load(sessionID)
		if fileErr != nil {
			log.Printf("[SessionManager] load session %s from file: %v", sessionID, fileErr)
			return nil
		}
		data = fileData
	}
	if data == nil {
		return nil
	}

	session, err := models.DecodeSession(data)
	if err != nil {
		log.Printf("[SessionManager] decode session %s: %v", sessionID, err)
		return nil
	}
	return session
}

// JoinSession claims a position for a new participant. It re-fetches the
// session through the read-through path first, to shrink the race window
// against other serving instances, and persists synchronously for the same
// reason. Validation order and codes are part of the API contract.
func (m *SessionManager) JoinSession(ctx context.Context, sessionID, name string, position int) (string, *JoinError) {
	if m.getSession(ctx, sessionID) == nil {
		return "", &JoinError{Code: CodeSessionNotFound, Message: "session not found"}
	}

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok || session.Started {
		m.mu.Unlock()
		return "", &JoinError{Code: CodeSessionNotFound, Message: "session not found or already started"}
	}
	if len(session.Participants) >= session.ParticipantCount {
		m.mu.Unlock()
		return "", &JoinError{Code: CodeParticipantLimitReached, Message: "participant limit reached"}
	}
	if position < 1 || position > session.ParticipantCount {
		m.mu.Unlock()
		return "", &JoinError{Code: CodeInvalidPosition, Message: "position out of range"}
	}
	if session.SelectedPositions[position] {
		m.mu.Unlock()
		return "", &JoinError{Code: CodePositionAlreadyTaken, Message: "position already taken"}
	}

	participant := &models.Participant{
		ID:       uuid.NewString(),
		Name:     name,
		Position: position,
	}
	session.Participants = append(session.Participants, participant)
	session.SelectedPositions[position] = true
	session.Bump()

	job, encodeErr := m.persistJobLocked(session)
	joined := *participant
	m.mu.Unlock()

	metrics.ParticipantsJoinedTotal.Inc()
	log.Printf("[SessionManager] participant %s joined session %s at position %d", participant.ID, sessionID, position)

	// Blocking save on the join path, to narrow the cross-instance race.
	if encodeErr != nil {
		log.Printf("[SessionManager] encode session %s: %v", sessionID, encodeErr)
	} else if err := m.saveRecord(ctx, job); err != nil {
		log.Printf("[SessionManager] persist session %s after join: %v", sessionID, err)
	}

	m.hub.Broadcast(sessionID, EventParticipantJoined, map[string]interface{}{
		"participantId": joined.ID,
		"participant":   joined,
	})
	return joined.ID, nil
}

// MarkParticipantReady flips the participant's ready flag. Marking an
// already-ready participant succeeds again and re-broadcasts.
func (m *SessionManager) MarkParticipantReady(ctx context.Context, sessionID, participantID string) bool {
	if m.getSession(ctx, sessionID) == nil {
		return false
	}

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	participant := session.Participant(participantID)
	if participant == nil {
		m.mu.Unlock()
		return false
	}
	participant.Ready = true
	session.Bump()
	job, encodeErr := m.persistJobLocked(session)
	m.mu.Unlock()

	if encodeErr != nil {
		log.Printf("[SessionManager] encode session %s: %v", sessionID, encodeErr)
	} else {
		m.enqueuePersist(job)
	}

	m.hub.Broadcast(sessionID, EventParticipantReady, map[string]interface{}{
		"participantId": participantID,
	})
	return true
}

// AreAllParticipantsReady is true only when the session is full and every
// participant has marked ready.
func (m *SessionManager) AreAllParticipantsReady(ctx context.Context, sessionID string) bool {
	session := m.getSession(ctx, sessionID)
	if session == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(session.Participants) != session.ParticipantCount {
		return false
	}
	for _, p := range session.Participants {
		if !p.Ready {
			return false
		}
	}
	return true
}

// StartSession performs the terminal Forming -> Started transition: shuffled
// draw labels are assigned to participants in join order and the full result
// mapping is broadcast. Fails without side effects unless the session exists,
// has not started, and everyone is ready.
func (m *SessionManager) StartSession(ctx context.Context, sessionID string) bool {
	if m.getSession(ctx, sessionID) == nil {
		return false
	}

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok || session.Started {
		m.mu.Unlock()
		return false
	}
	if len(session.Participants) != session.ParticipantCount {
		m.mu.Unlock()
		return false
	}
	for _, p := range session.Participants {
		if !p.Ready {
			m.mu.Unlock()
			return false
		}
	}

	session.Started = true
	shuffled := shuffleLabels(DrawLabels(session.ParticipantCount))
	for i, p := range session.Participants {
		p.Result = shuffled[i]
		session.Results[p.ID] = shuffled[i]
	}
	session.Bump()

	results := make(map[string]string, len(session.Results))
	for id, label := range session.Results {
		results[id] = label
	}
	job, encodeErr := m.persistJobLocked(session)
	m.mu.Unlock()

	metrics.DrawsStartedTotal.Inc()
	log.Printf("[SessionManager] session %s started, %d results assigned", sessionID, len(results))

	if encodeErr != nil {
		log.Printf("[SessionManager] encode session %s: %v", sessionID, encodeErr)
	} else {
		m.enqueuePersist(job)
	}

	m.hub.Broadcast(sessionID, EventSessionStarted, map[string]interface{}{
		"results": results,
	})
	return true
}

// Heartbeat keeps an active session out of the expiry sweep. The durable
// store's TTL is refreshed with a lightweight touch when possible, falling
// back to a full re-save when the record is gone.
func (m *SessionManager) Heartbeat(ctx context.Context, sessionID string) (time.Time, bool) {
	if m.getSession(ctx, sessionID) == nil {
		return time.Time{}, false
	}

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return time.Time{}, false
	}
	session.Touch()
	touchedAt := session.UpdatedAt
	job, encodeErr := m.persistJobLocked(session)
	m.mu.Unlock()

	refreshed, err := m.kv.Touch(ctx, sessionKeyPrefix+sessionID, m.ttl)
	if err != nil {
		log.Printf("[SessionManager] refresh TTL for session %s: %v", sessionID, err)
	}
	if !refreshed {
		if encodeErr != nil {
			log.Printf("[SessionManager] encode session %s: %v", sessionID, encodeErr)
		} else {
			m.enqueuePersist(job)
		}
	}
	return touchedAt, true
}

// DeleteSession removes a session from the registry, the subscriber map, the
// durable store, and the file fallback.
func (m *SessionManager) DeleteSession(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		metrics.SessionsActive.Dec()
	}
	m.hub.RemoveSession(sessionID)
	if err := m.kv.Delete(ctx, sessionKeyPrefix+sessionID); err != nil {
		log.Printf("[SessionManager] delete session %s from store: %v", sessionID, err)
	}
	if err := m.files.Delete(sessionID); err != nil {
		log.Printf("[SessionManager] delete session %s file: %v", sessionID, err)
	}
	if ok {
		log.Printf("[SessionManager] deleted session %s", sessionID)
	}
	return ok
}

// persistJobLocked encodes the session for write-back. Callers must hold the
// manager lock; the returned job is safe to use after release.
func (m *SessionManager) persistJobLocked(session *models.Session) (persistJob, error) {
	data, err := session.Encode()
	if err != nil {
		return persistJob{}, err
	}
	return persistJob{sessionID: session.ID, data: data, version: session.Version}, nil
}

// enqueuePersist hands the job to the background writer. A full queue drops
// the job with a log line; the contract is best effort, observable via logs.
func (m *SessionManager) enqueuePersist(job persistJob) {
	select {
	case m.persistCh <- job:
	default:
		metrics.PersistFailuresTotal.WithLabelValues("queue").Inc()
		log.Printf("[SessionManager] persist queue full, dropping save of session %s", job.sessionID)
	}
}

func (m *SessionManager) persistLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case job := <-m.persistCh:
			if err := m.saveRecord(context.Background(), job); err != nil {
				log.Printf("[SessionManager] persist session %s: %v", job.sessionID, err)
			}
		}
	}
}

// saveRecord writes a session record through the optimistic-concurrency
// check: an equal or newer version already in the store means another writer
// got there first, and the save is rejected rather than repaired. Store
// outages retry briefly, then fall back to the file store.
func (m *SessionManager) saveRecord(ctx context.Context, job persistJob) error {
	key := sessionKeyPrefix + job.sessionID

	save := func() error {
		existing, err := m.kv.Get(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			version, err := models.RecordVersion(existing)
			if err == nil && version >= job.version {
				return backoff.Permanent(ErrVersionConflict)
			}
		}
		return m.kv.Set(ctx, key, job.data, m.ttl)
	}

	strategy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), persistMaxRetries), ctx)
	err := backoff.RetryNotify(save, strategy, func(err error, next time.Duration) {
		log.Printf("[SessionManager] retrying save of session %s: %v (next attempt in %s)", job.sessionID, err, next)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrVersionConflict) {
		metrics.VersionConflictsTotal.Inc()
		return ErrVersionConflict
	}

	metrics.PersistFailuresTotal.WithLabelValues("kv").Inc()
	log.Printf("[SessionManager] store save of session %s failed, using file fallback: %v", job.sessionID, err)
	if fileErr := m.files.Save(job.sessionID, job.data); fileErr != nil {
		metrics.PersistFailuresTotal.WithLabelValues("file").Inc()
		return fileErr
	}
	return nil
}

// sweepLoop removes sessions idle beyond the expiry window from every layer.
// It is idempotent; a request touching a swept session simply sees not-found
// on its next access.
func (m *SessionManager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.sweepExpired(now)
			m.files.CleanupExpired(m.ttl)
		}
	}
}

func (m *SessionManager) sweepExpired(now time.Time) {
	m.mu.Lock()
	var expired []string
	for id, session := range m.sessions {
		if now.Sub(session.UpdatedAt) > m.ttl {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.hub.RemoveSession(id)
		if err := m.kv.Delete(context.Background(), sessionKeyPrefix+id); err != nil {
			log.Printf("[SessionManager] sweep delete session %s from store: %v", id, err)
		}
		if err := m.files.Delete(id); err != nil {
			log.Printf("[SessionManager] sweep delete session %s file: %v", id, err)
		}
		metrics.SessionsActive.Dec()
		metrics.SessionsExpiredTotal.Inc()
		log.Printf("[SessionManager] expired session %s", id)
	}
}
