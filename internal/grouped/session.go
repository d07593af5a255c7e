package grouped

import (
	"context"
	"io"
	"sync"
	"time"

	"qbadmin/internal/content"
	"qbadmin/internal/exam"
	"qbadmin/internal/journal"
	"qbadmin/internal/question"

	"github.com/google/uuid"
)

// CommonTarget addresses the shared reading passage in block operations.
// Any other target is a sub-question local id.
const CommonTarget = "common"

type ExamResolver interface {
	Resolve(ctx context.Context, f exam.Filter) (int64, error)
}

type QuestionStore interface {
	Create(ctx context.Context, in question.ParentPayload) (int64, error)
	Update(ctx context.Context, examID, id int64, in question.ParentPayload) error
	Delete(ctx context.Context, id int64) error
}

type SubQuestionStore interface {
	Create(ctx context.Context, in question.ChildPayload) error
	Update(ctx context.Context, examID, parentID int64, seq int, in question.ChildPayload) error
	Delete(ctx context.Context, examID, parentID int64, seq int) error
}

type Recorder interface {
	RecordSave(ctx context.Context, e journal.Entry) error
}

// Config is the editor configuration fixed at session construction.
type Config struct {
	UserID                  int64
	DefaultClassificationID int64
	QuestionTypeID          int64
	// RollbackExistingParent also deletes a pre-existing parent when its
	// children fail to save during an edit. That discards previously saved
	// content, so it is off by default.
	RollbackExistingParent bool
	OnSaved                func(Outcome)
}

// Deps are the remote collaborators used by Save.
type Deps struct {
	Resolver     ExamResolver
	Questions    QuestionStore
	SubQuestions SubQuestionStore
	Uploader     content.Uploader
	Journal      Recorder
	OnOutcome    func(Outcome)
	OnTransition func(sessionID string, from, to SaveState)
}

// Session is one grouped question being edited. All methods are safe for
// concurrent use; mutations fail with ErrSessionBusy while Save runs.
type Session struct {
	id   string
	cfg  Config
	deps Deps

	mu        sync.Mutex
	saving    bool
	common    content.Statement
	drafts    []*SubQuestionDraft
	removed   []int
	parentID  int64
	examID    int64
	filter    exam.Filter
	last      *Outcome
	touchedAt time.Time
}

// NewSession starts a new group with one blank, expanded sub-question.
func NewSession(cfg Config, deps Deps) *Session {
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		deps:      deps,
		touchedAt: time.Now(),
	}
	s.drafts = []*SubQuestionDraft{newDraft(cfg.DefaultClassificationID)}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// ParentID is the remote parent question id, 0 while the group is new.
func (s *Session) ParentID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parentID
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}

func (s *Session) isSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// edit runs fn under the session lock unless a save is in flight.
func (s *Session) edit(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving {
		return ErrSessionBusy
	}
	s.touchedAt = time.Now()
	return fn()
}

func (s *Session) findLocked(localID string) (int, *SubQuestionDraft) {
	for i, d := range s.drafts {
		if d.ID.Key() == localID {
			return i, d
		}
	}
	return -1, nil
}

func (s *Session) draftLocked(localID string) (*SubQuestionDraft, error) {
	_, d := s.findLocked(localID)
	if d == nil {
		return nil, ErrDraftNotFound
	}
	return d, nil
}

func (s *Session) statementLocked(target string) (*content.Statement, error) {
	if target == CommonTarget {
		return &s.common, nil
	}
	_, d := s.findLocked(target)
	if d == nil {
		return nil, ErrTargetNotFound
	}
	return &d.Statement, nil
}

// AddSubQuestion collapses every draft and appends a blank expanded one.
func (s *Session) AddSubQuestion() (DraftView, error) {
	var out DraftView
	err := s.edit(func() error {
		for _, d := range s.drafts {
			d.Expanded = false
		}
		d := newDraft(s.cfg.DefaultClassificationID)
		s.drafts = append(s.drafts, d)
		out = d.view(len(s.drafts))
		return nil
	})
	return out, err
}

// RemoveSubQuestion drops a draft. The last remaining draft cannot be removed.
// Removing a persisted draft schedules its remote child for deletion on the
// next save.
func (s *Session) RemoveSubQuestion(localID string) error {
	return s.edit(func() error {
		i, d := s.findLocked(localID)
		if d == nil {
			return ErrDraftNotFound
		}
		if len(s.drafts) <= 1 {
			return ErrMinimumCount
		}
		if p, ok := d.ID.(Persisted); ok {
			s.removed = append(s.removed, p.Seq)
		}
		s.drafts = append(s.drafts[:i], s.drafts[i+1:]...)
		return nil
	})
}

// SetAlternativeCorrect marks one alternative correct and clears the others.
func (s *Session) SetAlternativeCorrect(localID string, altIndex int) error {
	return s.edit(func() error {
		d, err := s.draftLocked(localID)
		if err != nil {
			return err
		}
		if altIndex < 0 || altIndex >= alternativeCount {
			return ErrAlternativeIndex
		}
		d.setCorrect(altIndex)
		return nil
	})
}

// UpdateAlternative changes an alternative's content; correctness is untouched.
func (s *Session) UpdateAlternative(localID string, altIndex int, text string) error {
	return s.edit(func() error {
		d, err := s.draftLocked(localID)
		if err != nil {
			return err
		}
		if altIndex < 0 || altIndex >= alternativeCount {
			return ErrAlternativeIndex
		}
		d.Alternatives[altIndex].Content = text
		return nil
	})
}

func (s *Session) UpdateClassification(localID string, classificationID int64) error {
	return s.edit(func() error {
		d, err := s.draftLocked(localID)
		if err != nil {
			return err
		}
		d.ClassificationID = classificationID
		return nil
	})
}

func (s *Session) UpdateRationale(localID, text string) error {
	return s.edit(func() error {
		d, err := s.draftLocked(localID)
		if err != nil {
			return err
		}
		d.Rationale = text
		return nil
	})
}

func (s *Session) SetExpanded(localID string, expanded bool) error {
	return s.edit(func() error {
		d, err := s.draftLocked(localID)
		if err != nil {
			return err
		}
		d.Expanded = expanded
		return nil
	})
}

func (s *Session) SetExamFilter(f exam.Filter) error {
	return s.edit(func() error {
		s.filter = f
		return nil
	})
}

func (s *Session) AddBlock(target string, kind content.Kind) (content.Block, error) {
	if !content.ValidKind(kind) {
		return content.Block{}, ErrInvalidKind
	}
	var out content.Block
	err := s.edit(func() error {
		st, err := s.statementLocked(target)
		if err != nil {
			return err
		}
		out = st.AddBlock(kind)
		return nil
	})
	return out, err
}

// UpdateBlock is a no-op when the block id is unknown within the target.
func (s *Session) UpdateBlock(target, blockID, text string) error {
	return s.edit(func() error {
		st, err := s.statementLocked(target)
		if err != nil {
			return err
		}
		st.UpdateBlock(blockID, text)
		return nil
	})
}

func (s *Session) RemoveBlock(target, blockID string) error {
	return s.edit(func() error {
		st, err := s.statementLocked(target)
		if err != nil {
			return err
		}
		st.RemoveBlock(blockID)
		return nil
	})
}

// UploadImage uploads r and appends an image block to target. The upload runs
// without the session lock; the target is checked again before appending, and
// a failed upload leaves the statement unchanged.
func (s *Session) UploadImage(ctx context.Context, target, filename string, r io.Reader) (content.Block, error) {
	err := s.edit(func() error {
		_, err := s.statementLocked(target)
		return err
	})
	if err != nil {
		return content.Block{}, err
	}

	url, err := content.UploadImage(ctx, s.deps.Uploader, filename, r)
	if err != nil {
		return content.Block{}, err
	}

	var out content.Block
	err = s.edit(func() error {
		st, err := s.statementLocked(target)
		if err != nil {
			return err
		}
		out = st.AppendImage(url)
		return nil
	})
	return out, err
}

// AppendDrafts adds imported drafts. A session still holding only its initial
// untouched draft has that draft replaced.
func (s *Session) AppendDrafts(drafts []*SubQuestionDraft) error {
	if len(drafts) == 0 {
		return nil
	}
	return s.edit(func() error {
		if len(s.drafts) == 1 && isBlank(s.drafts[0], s.cfg.DefaultClassificationID) {
			s.drafts = s.drafts[:0]
		}
		for _, d := range s.drafts {
			d.Expanded = false
		}
		for _, d := range drafts {
			d.Expanded = false
			s.drafts = append(s.drafts, d)
		}
		return nil
	})
}

func isBlank(d *SubQuestionDraft, defaultClassification int64) bool {
	if _, ok := d.ID.(Local); !ok {
		return false
	}
	if !d.Statement.Empty() || d.Rationale != "" || d.ClassificationID != defaultClassification {
		return false
	}
	for _, a := range d.Alternatives {
		if a.Content != "" || a.IsCorrect {
			return false
		}
	}
	return true
}

// SessionView is the JSON shape of a session.
type SessionView struct {
	ID              string          `json:"id"`
	ParentID        int64           `json:"parent_id,omitempty"`
	ExamID          int64           `json:"exam_id,omitempty"`
	ExamFilter      exam.Filter     `json:"exam_filter"`
	CommonStatement []content.Block `json:"common_statement"`
	SubQuestions    []DraftView     `json:"sub_questions"`
	PendingDeletes  []int           `json:"pending_deletes,omitempty"`
	Saving          bool            `json:"saving"`
	LastOutcome     *Outcome        `json:"last_outcome,omitempty"`
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		ID:              s.id,
		ParentID:        s.parentID,
		ExamID:          s.examID,
		ExamFilter:      s.filter,
		CommonStatement: s.common.Clone().Blocks,
		SubQuestions:    make([]DraftView, 0, len(s.drafts)),
		PendingDeletes:  append([]int(nil), s.removed...),
		Saving:          s.saving,
		LastOutcome:     s.last,
	}
	if v.CommonStatement == nil {
		v.CommonStatement = []content.Block{}
	}
	for i, d := range s.drafts {
		v.SubQuestions = append(v.SubQuestions, d.view(i+1))
	}
	return v
}
