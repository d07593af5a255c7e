package grouped

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"qbadmin/internal/content"
	"qbadmin/internal/question"

	"github.com/xuri/excelize/v2"
)

var excelHeaders = []string{"clasificacion", "enunciado", "a", "b", "c", "d", "respuesta", "sustento"}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
}

// ParseDraftsExcel reads sub-questions from the first sheet of an Excel file.
// Invalid rows are reported and skipped.
func ParseDraftsExcel(r io.Reader, defaultClassification int64) ([]*SubQuestionDraft, *ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"enunciado", "a", "b", "c", "d", "respuesta"} {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	drafts := make([]*SubQuestionDraft, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]

		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if isEmptyRow(row) {
			continue
		}
		report.TotalRows++

		fail := func(msg string) {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: msg})
		}

		statement := get("enunciado")
		if statement == "" {
			fail("enunciado is required")
			continue
		}
		answer := question.LetterIndex(get("respuesta"))
		if answer < 0 {
			fail("respuesta must be one of A, B, C, D")
			continue
		}
		classification := defaultClassification
		if raw := get("clasificacion"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n <= 0 {
				fail("clasificacion must be a positive number")
				continue
			}
			classification = n
		}
		blocks, err := statementBlocks(statement)
		if err != nil {
			fail(err.Error())
			continue
		}

		d := newDraft(classification)
		d.Expanded = false
		d.Statement = content.Statement{Blocks: blocks}
		for idx, col := range []string{"a", "b", "c", "d"} {
			d.Alternatives[idx].Content = get(col)
		}
		d.setCorrect(answer)
		d.Rationale = get("sustento")
		drafts = append(drafts, d)
		report.SuccessRows++
	}

	return drafts, report, nil
}

// statementBlocks accepts stored markup as-is and wraps plain text in a paragraph.
func statementBlocks(raw string) ([]content.Block, error) {
	if !strings.HasPrefix(raw, "<") {
		raw = "<p>" + html.EscapeString(raw) + "</p>"
	}
	blocks, err := content.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, errors.New("enunciado is empty")
	}
	return blocks, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ImportExcel appends the valid rows of an Excel file as new drafts.
func (s *Session) ImportExcel(r io.Reader) (*ImportReport, error) {
	drafts, report, err := ParseDraftsExcel(r, s.cfg.DefaultClassificationID)
	if err != nil {
		return nil, err
	}
	if err := s.AppendDrafts(drafts); err != nil {
		return nil, err
	}
	return report, nil
}

// ExportExcel writes the current drafts in the import layout.
func (s *Session) ExportExcel() ([]byte, error) {
	v := s.View()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, d := range v.SubQuestions {
		row := i + 2
		answer := ""
		for idx, a := range d.Alternatives {
			if a.IsCorrect {
				answer = question.Letters[idx]
			}
		}
		values := []any{
			d.ClassificationID,
			content.Serialize(d.Statement),
			d.Alternatives[0].Content,
			d.Alternatives[1].Content,
			d.Alternatives[2].Content,
			d.Alternatives[3].Content,
			answer,
			d.Rationale,
		}
		for col, val := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, val)
		}
	}
	_ = f.SetColWidth(sheet, "A", "H", 24)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
