package grouped

import (
	"context"
	"errors"
	"fmt"

	"qbadmin/internal/question"
)

type ServiceConfig struct {
	Editor   Config
	Deps     Deps
	Parents  ParentReader
	Children ChildLister
	Sessions *Registry
}

// Service opens editing sessions and keeps them in the registry.
type Service struct {
	cfg      Config
	deps     Deps
	parents  ParentReader
	children ChildLister
	sessions *Registry
}

func NewService(c ServiceConfig) *Service {
	sessions := c.Sessions
	if sessions == nil {
		sessions = NewRegistry(0)
	}
	return &Service{
		cfg:      c.Editor,
		deps:     c.Deps,
		parents:  c.Parents,
		children: c.Children,
		sessions: sessions,
	}
}

func (s *Service) Create() *Session {
	sess := NewSession(s.cfg, s.deps)
	s.sessions.Put(sess)
	return sess
}

// Open loads an existing grouped question into a new editing session.
func (s *Service) Open(ctx context.Context, examID, parentID int64) (*Session, error) {
	if parentID <= 0 {
		return nil, fmt.Errorf("%w: parent id is required", ErrValidation)
	}
	if s.parents == nil || s.children == nil {
		return nil, errors.New("question stores are not configured")
	}
	sess, err := Load(ctx, s.cfg, s.deps, s.parents, s.children, examID, parentID)
	if err != nil {
		if errors.Is(err, question.ErrQuestionNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrSessionNotFound, err)
		}
		return nil, err
	}
	s.sessions.Put(sess)
	return sess, nil
}

func (s *Service) Session(id string) (*Session, error) {
	return s.sessions.Get(id)
}

func (s *Service) Discard(id string) error {
	return s.sessions.Delete(id)
}
