package question

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"qbadmin/internal/backend"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
	ErrMissingID        = errors.New("content api returned no question id")
)

// Store persists parent questions through the content API.
type Store struct {
	api *backend.Client
}

// SubStore persists sub-questions, keyed remotely by (exam, parent, numero).
type SubStore struct {
	api *backend.Client
}

func NewStore(api *backend.Client) *Store {
	return &Store{api: api}
}

func NewSubStore(api *backend.Client) *SubStore {
	return &SubStore{api: api}
}

func (s *Store) Create(ctx context.Context, in ParentPayload) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := s.api.Post(ctx, "/preguntas", in, &out); err != nil {
		return 0, fmt.Errorf("create question: %w", err)
	}
	if out.ID <= 0 {
		return 0, ErrMissingID
	}
	return out.ID, nil
}

func (s *Store) Update(ctx context.Context, examID, id int64, in ParentPayload) error {
	if examID <= 0 || id <= 0 {
		return ErrInvalidInput
	}
	if err := s.api.Put(ctx, fmt.Sprintf("/preguntas/%d/%d", examID, id), in, nil); err != nil {
		return fmt.Errorf("update question %d: %w", id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	if err := s.api.Delete(ctx, fmt.Sprintf("/preguntas/%d", id)); err != nil {
		return fmt.Errorf("delete question %d: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Parent, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	var out Parent
	if err := s.api.Get(ctx, fmt.Sprintf("/preguntas/%d", id), nil, &out); err != nil {
		if backend.IsNotFound(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question %d: %w", id, err)
	}
	if out.ID == 0 {
		out.ID = id
	}
	return &out, nil
}

func (s *SubStore) Create(ctx context.Context, in ChildPayload) error {
	if err := s.api.Post(ctx, "/subpreguntas", in, nil); err != nil {
		return fmt.Errorf("create sub-question %d: %w", in.Numero, err)
	}
	return nil
}

func (s *SubStore) Update(ctx context.Context, examID, parentID int64, seq int, in ChildPayload) error {
	if examID <= 0 || parentID <= 0 || seq <= 0 {
		return ErrInvalidInput
	}
	if err := s.api.Put(ctx, subPath(examID, parentID, seq), in, nil); err != nil {
		return fmt.Errorf("update sub-question %d: %w", seq, err)
	}
	return nil
}

func (s *SubStore) Delete(ctx context.Context, examID, parentID int64, seq int) error {
	if examID <= 0 || parentID <= 0 || seq <= 0 {
		return ErrInvalidInput
	}
	if err := s.api.Delete(ctx, subPath(examID, parentID, seq)); err != nil {
		return fmt.Errorf("delete sub-question %d: %w", seq, err)
	}
	return nil
}

// ListByParent returns the stored children of a parent ordered by numero.
func (s *SubStore) ListByParent(ctx context.Context, examID, parentID int64) ([]ChildPayload, error) {
	if examID <= 0 || parentID <= 0 {
		return nil, ErrInvalidInput
	}
	items := make([]ChildPayload, 0)
	if err := s.api.Get(ctx, fmt.Sprintf("/subpreguntas/%d/%d", examID, parentID), nil, &items); err != nil {
		if backend.IsNotFound(err) {
			return []ChildPayload{}, nil
		}
		return nil, fmt.Errorf("list sub-questions: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Numero < items[j].Numero })
	return items, nil
}

func subPath(examID, parentID int64, seq int) string {
	return fmt.Sprintf("/subpreguntas/%d/%d/%d", examID, parentID, seq)
}
