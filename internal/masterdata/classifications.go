package masterdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"qbadmin/internal/backend"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrClassificationNotFound = errors.New("classification not found")
)

// Classification is a subject-area tag attached to each sub-question.
type Classification struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// ClassificationSource loads the classification list once and serves it from
// memory afterwards. A failed load is not cached.
type ClassificationSource struct {
	api *backend.Client

	mu     sync.Mutex
	loaded bool
	items  []Classification
	byID   map[int64]Classification
}

func NewClassificationSource(api *backend.Client) *ClassificationSource {
	return &ClassificationSource{api: api}
}

func (s *ClassificationSource) ListAll(ctx context.Context) ([]Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadLocked(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]Classification, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Get resolves one classification id against the cached list.
func (s *ClassificationSource) Get(ctx context.Context, id int64) (Classification, error) {
	if id <= 0 {
		return Classification{}, ErrInvalidInput
	}
	if _, err := s.ListAll(ctx); err != nil {
		return Classification{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Classification{}, ErrClassificationNotFound
	}
	return c, nil
}

// Invalidate forces the next ListAll to reload from the content API.
func (s *ClassificationSource) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

func (s *ClassificationSource) loadLocked(ctx context.Context) error {
	raw := make([]Classification, 0)
	if err := s.api.Get(ctx, "/clasificaciones", nil, &raw); err != nil {
		return fmt.Errorf("load classifications: %w", err)
	}

	items := make([]Classification, 0, len(raw))
	byID := make(map[int64]Classification, len(raw))
	for _, c := range raw {
		c.Name = strings.TrimSpace(c.Name)
		if c.ID <= 0 {
			continue
		}
		if _, dup := byID[c.ID]; dup {
			continue
		}
		byID[c.ID] = c
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	s.items = items
	s.byID = byID
	s.loaded = true
	return nil
}
