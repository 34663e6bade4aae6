package storage

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// MemoryStore is an in-process Storage used by the console, tests and
// single-process deployments. Values are copied on the way in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]quest.Session
	progress   map[string]quest.UserProgress
	skipBudget int

	pingError error
	saveError error
}

var _ Storage = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store; new progress records get skipBudget skips.
func NewMemoryStore(skipBudget int) *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]quest.Session),
		progress:   make(map[string]quest.UserProgress),
		skipBudget: skipBudget,
	}
}

// SetPingError configures Ping to fail with err (nil to succeed).
func (m *MemoryStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes every write fail with err (nil to succeed).
func (m *MemoryStore) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MemoryStore) Close() error {
	return nil
}

func sessionKey(userID, chatID string) string {
	return userID + ":" + chatID
}

func (m *MemoryStore) LoadSession(ctx context.Context, userID, chatID string) (*quest.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionKey(userID, chatID)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *quest.Session) error {
	if s == nil {
		return errors.New("session cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.sessions[sessionKey(s.UserID, s.ChatID)] = *s
	return nil
}

// DeleteSession removes a session; used by tests and admin tooling.
func (m *MemoryStore) DeleteSession(ctx context.Context, userID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(userID, chatID))
	return nil
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id quest.Identity) (*quest.UserProgress, error) {
	if id.ID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.progress[id.ID]; ok {
		return cloneProgress(p), nil
	}
	p := quest.NewProgress(id, m.skipBudget)
	m.progress[id.ID] = *cloneProgress(*p)
	return p, nil
}

// Save applies the same rules as the SQL store: StartedAt and FinishedAt
// are never cleared and the skip budget never grows.
func (m *MemoryStore) Save(ctx context.Context, p *quest.UserProgress) error {
	if p == nil || p.ID == "" {
		return errors.New("progress must have an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	next := *cloneProgress(*p)
	if cur, ok := m.progress[p.ID]; ok {
		if cur.StartedAt != nil {
			next.StartedAt = cur.StartedAt
		}
		if cur.FinishedAt != nil {
			next.FinishedAt = cur.FinishedAt
		}
		next.SkipBudget = min(next.SkipBudget, cur.SkipBudget)
	}
	next.SkipBudget = max(next.SkipBudget, 0)
	m.progress[p.ID] = next
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context, since time.Time) (*quest.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &quest.Stats{Total: len(m.progress)}
	perDay := make(map[time.Time]int)
	for _, p := range m.progress {
		if p.StartedAt != nil {
			st.Started++
		}
		if p.FinishedAt == nil {
			continue
		}
		st.Finished++
		if !p.FinishedAt.Before(since) {
			perDay[p.FinishedAt.UTC().Truncate(24*time.Hour)]++
		}
	}
	for day, n := range perDay {
		st.FinishedByDay = append(st.FinishedByDay, quest.DayCount{Day: day, Count: n})
	}
	slices.SortFunc(st.FinishedByDay, func(a, b quest.DayCount) int { return a.Day.Compare(b.Day) })
	return st, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*quest.UserProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*quest.UserProgress, 0, len(m.progress))
	for _, p := range m.progress {
		out = append(out, cloneProgress(p))
	}
	slices.SortFunc(out, compareStarted)
	return out, nil
}

// compareStarted orders by StartedAt descending, unstarted last, then by id.
func compareStarted(a, b *quest.UserProgress) int {
	switch {
	case a.StartedAt == nil && b.StartedAt == nil:
	case a.StartedAt == nil:
		return 1
	case b.StartedAt == nil:
		return -1
	default:
		if c := b.StartedAt.Compare(*a.StartedAt); c != 0 {
			return c
		}
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}

func cloneProgress(p quest.UserProgress) *quest.UserProgress {
	if p.StartedAt != nil {
		t := *p.StartedAt
		p.StartedAt = &t
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		p.FinishedAt = &t
	}
	return &p
}
