package grouped

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"qbadmin/internal/content"
	"qbadmin/internal/exam"
	"qbadmin/internal/journal"
	"qbadmin/internal/question"

	"golang.org/x/sync/errgroup"
)

type SaveState string

const (
	StateIdle                SaveState = "idle"
	StateValidating          SaveState = "validating"
	StateResolvingExam       SaveState = "resolving_exam"
	StatePersistingParent    SaveState = "persisting_parent"
	StatePersistingChildren  SaveState = "persisting_children"
	StateDone                SaveState = "done"
	StateValidationFailed    SaveState = "validation_failed"
	StateResolutionFailed    SaveState = "resolution_failed"
	StateParentPersistFailed SaveState = "parent_persist_failed"
	StateChildPersistFailed  SaveState = "child_persist_failed"
	StateRollingBack         SaveState = "rolling_back"
	StateRolledBack          SaveState = "rolled_back"
	StateRollbackFailed      SaveState = "rollback_failed"
)

var transitions = map[SaveState][]SaveState{
	StateIdle:               {StateValidating},
	StateValidating:         {StateResolvingExam, StateValidationFailed},
	StateResolvingExam:      {StatePersistingParent, StateResolutionFailed},
	StatePersistingParent:   {StatePersistingChildren, StateParentPersistFailed},
	StatePersistingChildren: {StateDone, StateChildPersistFailed},
	StateChildPersistFailed: {StateRollingBack},
	StateRollingBack:        {StateRolledBack, StateRollbackFailed},
}

// CanTransition reports whether the save state machine allows from -> to.
func CanTransition(from, to SaveState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s. A child failure
// that is not rolled back ends in StateChildPersistFailed.
func (s SaveState) Terminal() bool {
	switch s {
	case StateDone, StateValidationFailed, StateResolutionFailed, StateParentPersistFailed,
		StateChildPersistFailed, StateRolledBack, StateRollbackFailed:
		return true
	}
	return false
}

// Outcome is the single notification produced by Save.
type Outcome struct {
	OK         bool        `json:"ok"`
	State      SaveState   `json:"state"`
	History    []SaveState `json:"history"`
	ExamID     int64       `json:"exam_id,omitempty"`
	ParentID   int64       `json:"parent_id,omitempty"`
	ChildCount int         `json:"child_count,omitempty"`
	Message    string      `json:"message"`
	Diagnostic string      `json:"diagnostic,omitempty"`
}

type saveRun struct {
	sessionID string
	state     SaveState
	history   []SaveState
	notify    func(sessionID string, from, to SaveState)
	written   childWrites
}

func (r *saveRun) advance(next SaveState) {
	if !CanTransition(r.state, next) {
		panic(fmt.Sprintf("grouped: illegal save transition %s -> %s", r.state, next))
	}
	from := r.state
	r.state = next
	r.history = append(r.history, next)
	logEvent(map[string]any{
		"event":      "grouped_save_transition",
		"session_id": r.sessionID,
		"from":       from,
		"to":         next,
	})
	if r.notify != nil {
		r.notify(r.sessionID, from, next)
	}
}

// snapshot is what a save writes, captured under the session lock so that
// nothing edited afterwards leaks into the in-flight save.
type snapshot struct {
	common   []content.Block
	drafts   []*SubQuestionDraft
	removed  []int
	parentID int64
	examID   int64
	filter   exam.Filter
}

// Save validates the session and persists parent and children. Every failure
// is reported through the returned Outcome and *SaveError; a child failure
// after a parent create deletes that parent again.
func (s *Session) Save(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return Outcome{}, ErrSessionBusy
	}
	s.saving = true
	snap := snapshot{
		common:   s.common.Clone().Blocks,
		drafts:   make([]*SubQuestionDraft, len(s.drafts)),
		removed:  append([]int(nil), s.removed...),
		parentID: s.parentID,
		examID:   s.examID,
		filter:   s.filter,
	}
	for i, d := range s.drafts {
		snap.drafts[i] = d.clone()
	}
	s.mu.Unlock()

	run := &saveRun{sessionID: s.id, state: StateIdle, notify: s.deps.OnTransition}
	out, parentID, serr := s.execute(ctx, run, snap)
	out.State = run.state
	out.History = run.history

	s.mu.Lock()
	s.saving = false
	s.applyOutcomeLocked(run.state, snap, out, parentID, &run.written)
	last := out
	s.last = &last
	s.mu.Unlock()

	s.record(ctx, out)
	if out.OK && s.cfg.OnSaved != nil {
		s.cfg.OnSaved(out)
	}
	if serr != nil {
		return out, serr
	}
	return out, nil
}

func (s *Session) execute(ctx context.Context, run *saveRun, snap snapshot) (Outcome, int64, *SaveError) {
	run.advance(StateValidating)
	if verr := validate(snap); verr != nil {
		run.advance(StateValidationFailed)
		return Outcome{Message: verr.Message}, 0, verr
	}

	run.advance(StateResolvingExam)
	examID, err := s.deps.Resolver.Resolve(ctx, snap.filter)
	if err != nil || examID <= 0 {
		run.advance(StateResolutionFailed)
		msg := "could not resolve the exam; complete the exam filters and try again"
		return Outcome{Message: msg}, 0, &SaveError{Kind: ErrResolution, State: StateResolutionFailed, Message: msg, Err: err}
	}

	run.advance(StatePersistingParent)
	parent := question.ParentPayload{
		Enunciado:       content.Serialize(snap.common),
		ExamenID:        examID,
		TipoPreguntaID:  s.cfg.QuestionTypeID,
		ClasificacionID: snap.drafts[0].ClassificationID,
	}
	parentID := snap.parentID
	created := parentID == 0
	if created {
		parentID, err = s.deps.Questions.Create(ctx, parent)
	} else {
		err = s.deps.Questions.Update(ctx, examID, parentID, parent)
	}
	if err != nil {
		run.advance(StateParentPersistFailed)
		msg := "could not save the grouped question"
		return Outcome{ExamID: examID, Message: msg}, snap.parentID, &SaveError{Kind: ErrParentPersist, State: StateParentPersistFailed, Message: msg, Err: err}
	}

	run.advance(StatePersistingChildren)
	if err := s.persistChildren(ctx, examID, parentID, snap, &run.written); err != nil {
		run.advance(StateChildPersistFailed)
		msg := "could not save the sub-questions; the whole operation was cancelled"
		serr := &SaveError{Kind: ErrChildPersist, State: StateChildPersistFailed, Message: msg, Err: err}
		out := Outcome{ExamID: examID, Message: msg}

		if !created && !s.cfg.RollbackExistingParent {
			out.ParentID = parentID
			return out, parentID, serr
		}

		run.advance(StateRollingBack)
		if derr := s.deps.Questions.Delete(context.WithoutCancel(ctx), parentID); derr != nil {
			run.advance(StateRollbackFailed)
			serr.State = StateRollbackFailed
			serr.RollbackErr = derr
			out.ParentID = parentID
			out.Diagnostic = fmt.Sprintf("rollback failed: parent question %d could not be deleted and must be removed manually", parentID)
			return out, parentID, serr
		}
		run.advance(StateRolledBack)
		serr.State = StateRolledBack
		return out, 0, serr
	}

	run.advance(StateDone)
	return Outcome{
		OK:         true,
		ExamID:     examID,
		ParentID:   parentID,
		ChildCount: len(snap.drafts),
		Message:    fmt.Sprintf("grouped question %d saved with %d sub-questions", parentID, len(snap.drafts)),
	}, parentID, nil
}

func validate(snap snapshot) *SaveError {
	if len(snap.common) == 0 {
		return validationError(0, "empty common statement")
	}
	for i, d := range snap.drafts {
		if d.correctLetter() == "" {
			return validationError(i+1, fmt.Sprintf("missing correct answer for sub-question #%d", i+1))
		}
		if d.ClassificationID == 0 {
			return validationError(i+1, fmt.Sprintf("missing classification for sub-question #%d", i+1))
		}
	}
	return nil
}

// childWrites are the child writes that reached the content API during one
// batch, kept so a failed edit can still track where its rows now live.
type childWrites struct {
	mu      sync.Mutex
	seqs    map[string]int
	deleted []int
}

func (w *childWrites) stored(localID string, seq int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seqs == nil {
		w.seqs = make(map[string]int)
	}
	w.seqs[localID] = seq
}

func (w *childWrites) removed(seq int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleted = append(w.deleted, seq)
}

// persistChildren writes the child batch. Children are addressed by numero,
// so the batch runs in phases that never target an occupied slot: removals
// first, then persisted drafts whose position moved, one at a time in
// position order, then every remaining update and create fanned out together.
// Drafts keep their relative order, so a moved draft only ever moves to a
// lower numero that a removal or an earlier move has already freed.
func (s *Session) persistChildren(ctx context.Context, examID, parentID int64, snap snapshot, written *childWrites) error {
	if snap.parentID == parentID && len(snap.removed) > 0 {
		err := fanOut(len(snap.removed), func(i int) error {
			seq := snap.removed[i]
			if err := s.deps.SubQuestions.Delete(ctx, examID, parentID, seq); err != nil {
				return fmt.Errorf("delete sub-question %d: %w", seq, err)
			}
			written.removed(seq)
			return nil
		})
		if err != nil {
			return err
		}
	}

	var (
		moves  []func() error
		writes []func() error
	)
	for i, d := range snap.drafts {
		pos := i + 1
		key := d.ID.Key()
		payload := d.childPayload(examID, parentID, pos)
		id, persisted := d.ID.(Persisted)
		if !persisted {
			writes = append(writes, func() error {
				if err := s.deps.SubQuestions.Create(ctx, payload); err != nil {
					return fmt.Errorf("create sub-question %d: %w", pos, err)
				}
				written.stored(key, pos)
				return nil
			})
			continue
		}
		update := func() error {
			if err := s.deps.SubQuestions.Update(ctx, examID, parentID, id.Seq, payload); err != nil {
				return fmt.Errorf("update sub-question %d: %w", id.Seq, err)
			}
			written.stored(key, pos)
			return nil
		}
		if id.Seq == pos {
			writes = append(writes, update)
		} else {
			moves = append(moves, update)
		}
	}

	for _, move := range moves {
		if err := move(); err != nil {
			return err
		}
	}
	return fanOut(len(writes), func(i int) error { return writes[i]() })
}

// fanOut dispatches n calls before awaiting any of them and joins every
// failure.
func fanOut(n int, fn func(i int) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			err := fn(i)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

// applyOutcomeLocked folds the remote result back into the live session.
func (s *Session) applyOutcomeLocked(final SaveState, snap snapshot, out Outcome, parentID int64, written *childWrites) {
	switch final {
	case StateDone:
		s.parentID = parentID
		s.examID = out.ExamID
		s.removed = nil
		for i, d := range snap.drafts {
			if _, live := s.findLocked(d.ID.Key()); live != nil {
				live.ID = Persisted{ID: d.ID.Key(), Seq: i + 1}
			}
		}
	case StateChildPersistFailed, StateRollbackFailed:
		// The edited parent still exists with part of the batch applied.
		if snap.parentID == 0 {
			return
		}
		for key, seq := range written.seqs {
			if _, live := s.findLocked(key); live != nil {
				live.ID = Persisted{ID: key, Seq: seq}
			}
		}
		s.removed = slices.DeleteFunc(s.removed, func(seq int) bool {
			return slices.Contains(written.deleted, seq)
		})
	case StateRolledBack:
		// An edited parent was deleted; everything it owned is gone remotely.
		if snap.parentID != 0 {
			s.parentID = 0
			s.examID = 0
			s.removed = nil
			for _, d := range s.drafts {
				d.ID = Local{ID: d.ID.Key()}
			}
		}
	}
}

func (s *Session) record(ctx context.Context, out Outcome) {
	if s.deps.OnOutcome != nil {
		s.deps.OnOutcome(out)
	}
	if s.deps.Journal == nil {
		return
	}
	count := out.ChildCount
	if !out.OK {
		count = 0
	}
	err := s.deps.Journal.RecordSave(context.WithoutCancel(ctx), journal.Entry{
		ActorID:    s.cfg.UserID,
		SessionID:  s.id,
		ExamID:     out.ExamID,
		ParentID:   out.ParentID,
		ChildCount: count,
		FinalState: string(out.State),
		Message:    out.Message,
		Orphaned:   out.State == StateRollbackFailed,
	})
	if err != nil {
		logEvent(map[string]any{
			"event":      "grouped_save_journal_error",
			"session_id": s.id,
			"error":      err.Error(),
		})
	}
}

func logEvent(entry map[string]any) {
	b, _ := json.Marshal(entry)
	log.Printf("%s", string(b))
}
