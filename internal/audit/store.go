package audit

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit caps ListRuns when no limit is given
const DefaultListLimit = 100

// RunStore persists runs
// ⭐ SSOT: 백테스트 실행 기록 저장/조회는 여기서만
type RunStore interface {
	// SaveRun inserts or replaces the run with the same id
	SaveRun(ctx context.Context, run *Run) error
	// GetRun returns the run with its series, or ErrRunNotFound
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	// ListRuns returns the newest runs first
	ListRuns(ctx context.Context, limit int) ([]RunInfo, error)
}

// MemoryRepository is a RunStore kept in process memory
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]Run
	seq  map[uuid.UUID]int
	next int
}

var _ RunStore = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		runs: make(map[uuid.UUID]Run),
		seq:  make(map[uuid.UUID]int),
	}
}

// SaveRun stores a copy of run
func (m *MemoryRepository) SaveRun(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seq[run.ID]; !ok {
		m.seq[run.ID] = m.next
		m.next++
	}
	m.runs[run.ID] = *run
	return nil
}

// GetRun returns a copy of the stored run
func (m *MemoryRepository) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

// ListRuns returns runs by creation time, newest first
func (m *MemoryRepository) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return m.seq[runs[i].ID] > m.seq[runs[j].ID]
	})

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}

	infos := make([]RunInfo, len(runs))
	for i := range runs {
		infos[i] = runs[i].Info()
	}
	return infos, nil
}
