package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no build record exists for an id.
var ErrNotFound = errors.New("build not found")

// Build status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Build records one construct call.
type Build struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Filename    string     `json:"filename"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	IncludeTOC  bool       `json:"include_toc"`
	PageCount   int        `json:"page_count"`
	Attachments []string   `json:"attachments,omitempty"`
	Size        int        `json:"size"`
	Location    string     `json:"location,omitempty"`
	Start       *time.Time `json:"start_time,omitempty"`
	End         *time.Time `json:"end_time,omitempty"`
}

// Builds persists build records.
type Builds interface {
	Save(ctx context.Context, b Build) error
	Get(ctx context.Context, id string) (Build, error)
	// ListBySession returns a session's builds, newest first.
	ListBySession(ctx context.Context, sessionID string) ([]Build, error)
	Close() error
}

// Memory is an in-process Builds used when no Redis is configured.
type Memory struct {
	mu     sync.RWMutex
	builds map[string]Build
}

func NewMemory() *Memory { return &Memory{builds: map[string]Build{}} }

func (m *Memory) Save(_ context.Context, b Build) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Attachments = append([]string(nil), b.Attachments...)
	m.builds[b.ID] = b
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Build, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.builds[id]
	if !ok {
		return Build{}, ErrNotFound
	}
	return b, nil
}

func (m *Memory) ListBySession(_ context.Context, sessionID string) ([]Build, error) {
	m.mu.RLock()
	var out []Build
	for _, b := range m.builds {
		if b.SessionID == sessionID {
			out = append(out, b)
		}
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

func sortNewestFirst(bs []Build) {
	sort.SliceStable(bs, func(i, j int) bool {
		return startOf(bs[i]).After(startOf(bs[j]))
	})
}

func startOf(b Build) time.Time {
	if b.Start == nil {
		return time.Time{}
	}
	return *b.Start
}
