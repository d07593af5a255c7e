package grouped

import (
	"qbadmin/internal/content"
	"qbadmin/internal/question"

	"github.com/google/uuid"
)

const alternativeCount = 4

// DraftID tells whether a sub-question already exists in the content API.
// It is either Local (editor-only) or Persisted (stored under Seq).
type DraftID interface {
	Key() string
	isDraftID()
}

// Local is a draft that has never been written remotely.
type Local struct {
	ID string
}

// Persisted is a draft backed by the remote child stored at Seq.
type Persisted struct {
	ID  string
	Seq int
}

func (l Local) Key() string { return l.ID }

func (p Persisted) Key() string { return p.ID }

func (Local) isDraftID() {}

func (Persisted) isDraftID() {}

func newLocalID() Local {
	return Local{ID: uuid.NewString()}
}

type Alternative struct {
	Label     string `json:"label"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct"`
}

// SubQuestionDraft is one child question being edited.
type SubQuestionDraft struct {
	ID               DraftID
	ClassificationID int64
	Statement        content.Statement
	Alternatives     [alternativeCount]Alternative
	Rationale        string
	Expanded         bool
}

func newDraft(classificationID int64) *SubQuestionDraft {
	d := &SubQuestionDraft{
		ID:               newLocalID(),
		ClassificationID: classificationID,
		Expanded:         true,
	}
	for i := range d.Alternatives {
		d.Alternatives[i].Label = question.Letters[i]
	}
	return d
}

// setCorrect marks idx as the only correct alternative.
func (d *SubQuestionDraft) setCorrect(idx int) {
	for i := range d.Alternatives {
		d.Alternatives[i].IsCorrect = i == idx
	}
}

// correctLetter returns the letter of the correct alternative, or "".
func (d *SubQuestionDraft) correctLetter() string {
	for i, a := range d.Alternatives {
		if a.IsCorrect {
			return question.Letters[i]
		}
	}
	return ""
}

func (d *SubQuestionDraft) clone() *SubQuestionDraft {
	out := *d
	out.Statement = d.Statement.Clone()
	return &out
}

func (d *SubQuestionDraft) childPayload(examID, parentID int64, seq int) question.ChildPayload {
	p := question.ChildPayload{
		ExamenID:          examID,
		PreguntaID:        parentID,
		Numero:            seq,
		Enunciado:         content.Serialize(d.Statement.Blocks),
		RespuestaCorrecta: d.correctLetter(),
		Sustento:          d.Rationale,
		ClasificacionID:   d.ClassificationID,
	}
	var alts [alternativeCount]string
	for i, a := range d.Alternatives {
		alts[i] = a.Content
	}
	p.SetAlternatives(alts)
	return p
}

// DraftView is the JSON shape of a draft.
type DraftView struct {
	LocalID          string                        `json:"local_id"`
	PersistedSeq     int                           `json:"persisted_seq,omitempty"`
	Position         int                           `json:"position"`
	ClassificationID int64                         `json:"classification_id"`
	Statement        []content.Block               `json:"statement"`
	Alternatives     [alternativeCount]Alternative `json:"alternatives"`
	Rationale        string                        `json:"rationale"`
	Expanded         bool                          `json:"expanded"`
}

func (d *SubQuestionDraft) view(position int) DraftView {
	v := DraftView{
		LocalID:          d.ID.Key(),
		Position:         position,
		ClassificationID: d.ClassificationID,
		Statement:        d.Statement.Clone().Blocks,
		Alternatives:     d.Alternatives,
		Rationale:        d.Rationale,
		Expanded:         d.Expanded,
	}
	if v.Statement == nil {
		v.Statement = []content.Block{}
	}
	if p, ok := d.ID.(Persisted); ok {
		v.PersistedSeq = p.Seq
	}
	return v
}
