package question

import "strings"

// Letters are the fixed alternative slots of a sub-question.
var Letters = [4]string{"A", "B", "C", "D"}

// ParentPayload is the body of a parent question create/update. A grouped
// parent carries no alternatives of its own; the single-question fields stay
// empty because the shared schema requires them.
type ParentPayload struct {
	Enunciado       string `json:"enunciado"`
	ExamenID        int64  `json:"examenId"`
	TipoPreguntaID  int64  `json:"tipoPreguntaId"`
	ClasificacionID int64  `json:"clasificacionId"`
	Sustento        string `json:"sustento"`
	Imagen          string `json:"imagen"`
	AlternativaA    string `json:"alternativaA"`
	AlternativaB    string `json:"alternativaB"`
	AlternativaC    string `json:"alternativaC"`
	AlternativaD    string `json:"alternativaD"`
	Respuesta       string `json:"respuesta"`
}

// Parent is a stored parent question.
type Parent struct {
	ID int64 `json:"id"`
	ParentPayload
}

// ChildPayload is the body of a sub-question create/update and also the shape
// the content API returns when listing children.
type ChildPayload struct {
	ExamenID          int64  `json:"examenId"`
	PreguntaID        int64  `json:"preguntaId"`
	Numero            int    `json:"numero"`
	Enunciado         string `json:"enunciado"`
	AlternativaA      string `json:"alternativaA"`
	AlternativaB      string `json:"alternativaB"`
	AlternativaC      string `json:"alternativaC"`
	AlternativaD      string `json:"alternativaD"`
	RespuestaCorrecta string `json:"respuestaCorrecta"`
	Sustento          string `json:"sustento"`
	ClasificacionID   int64  `json:"clasificacionId"`
	Imagen            string `json:"imagen"`
}

// Alternatives returns the four alternative contents in A..D order.
func (c ChildPayload) Alternatives() [4]string {
	return [4]string{c.AlternativaA, c.AlternativaB, c.AlternativaC, c.AlternativaD}
}

func (c *ChildPayload) SetAlternatives(alts [4]string) {
	c.AlternativaA = alts[0]
	c.AlternativaB = alts[1]
	c.AlternativaC = alts[2]
	c.AlternativaD = alts[3]
}

// LetterIndex maps "A".."D" (any case) to 0..3, or -1.
func LetterIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	for i, l := range Letters {
		if l == letter {
			return i
		}
	}
	return -1
}
