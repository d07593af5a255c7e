package grouped

import (
	"context"
	"fmt"
	"sort"
	"time"

	"qbadmin/internal/content"
	"qbadmin/internal/exam"
	"qbadmin/internal/question"

	"github.com/google/uuid"
)

type ParentReader interface {
	Get(ctx context.Context, id int64) (*question.Parent, error)
}

type ChildLister interface {
	ListByParent(ctx context.Context, examID, parentID int64) ([]question.ChildPayload, error)
}

// Load fetches an existing grouped question and hydrates an editing session.
// examID falls back to the exam stored on the parent.
func Load(ctx context.Context, cfg Config, deps Deps, parents ParentReader, children ChildLister, examID, parentID int64) (*Session, error) {
	parent, err := parents.Get(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("load parent question: %w", err)
	}
	if examID <= 0 {
		examID = parent.ExamenID
	}
	items, err := children.ListByParent(ctx, examID, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("load sub-questions: %w", err)
	}
	if parent.ExamenID == 0 {
		parent.ExamenID = examID
	}
	return Hydrate(cfg, deps, *parent, items)
}

// Hydrate rebuilds a session from a stored parent and its children.
func Hydrate(cfg Config, deps Deps, parent question.Parent, children []question.ChildPayload) (*Session, error) {
	common, err := content.Parse(parent.Enunciado)
	if err != nil {
		return nil, fmt.Errorf("parse common statement: %w", err)
	}

	sorted := make([]question.ChildPayload, len(children))
	copy(sorted, children)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Numero < sorted[j].Numero })

	drafts := make([]*SubQuestionDraft, 0, len(sorted))
	for i, c := range sorted {
		d, err := draftFromChild(c, i+1)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	if len(drafts) == 0 {
		drafts = append(drafts, newDraft(cfg.DefaultClassificationID))
	}
	drafts[0].Expanded = true

	return &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		deps:      deps,
		common:    content.Statement{Blocks: common},
		drafts:    drafts,
		parentID:  parent.ID,
		examID:    parent.ExamenID,
		filter:    exam.Filter{ExamID: parent.ExamenID},
		touchedAt: time.Now(),
	}, nil
}

func draftFromChild(c question.ChildPayload, position int) (*SubQuestionDraft, error) {
	blocks, err := content.Parse(c.Enunciado)
	if err != nil {
		return nil, fmt.Errorf("parse statement of sub-question #%d: %w", position, err)
	}
	seq := c.Numero
	if seq <= 0 {
		seq = position
	}
	d := &SubQuestionDraft{
		ID:               Persisted{ID: uuid.NewString(), Seq: seq},
		ClassificationID: c.ClasificacionID,
		Statement:        content.Statement{Blocks: blocks},
		Rationale:        c.Sustento,
	}
	alts := c.Alternatives()
	for i := range d.Alternatives {
		d.Alternatives[i] = Alternative{Label: question.Letters[i], Content: alts[i]}
	}
	if idx := question.LetterIndex(c.RespuestaCorrecta); idx >= 0 {
		d.setCorrect(idx)
	}
	return d, nil
}
