package exam

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"qbadmin/internal/backend"
)

// Filter is the exam selection made in the editor: either an explicit exam id
// or the year/type/area triple that identifies one exam.
type Filter struct {
	ExamID     int64 `json:"exam_id"`
	Year       int   `json:"year"`
	ExamTypeID int64 `json:"exam_type_id"`
	AreaID     int64 `json:"area_id"`
}

func (f Filter) Complete() bool {
	return f.ExamID > 0 || (f.Year > 0 && f.ExamTypeID > 0 && f.AreaID > 0)
}

type Exam struct {
	ID         int64  `json:"id"`
	Name       string `json:"nombre"`
	Year       int    `json:"anio"`
	ExamTypeID int64  `json:"tipoExamenId"`
	AreaID     int64  `json:"areaId"`
}

// Resolver turns a Filter into a concrete exam id. A zero id with a nil error
// means the filter does not identify exactly one exam.
type Resolver struct {
	api *backend.Client
}

func NewResolver(api *backend.Client) *Resolver {
	return &Resolver{api: api}
}

func (r *Resolver) Resolve(ctx context.Context, f Filter) (int64, error) {
	if !f.Complete() {
		return 0, nil
	}

	if f.ExamID > 0 {
		var ex Exam
		if err := r.api.Get(ctx, fmt.Sprintf("/examenes/%d", f.ExamID), nil, &ex); err != nil {
			if backend.IsNotFound(err) {
				return 0, nil
			}
			return 0, fmt.Errorf("load exam %d: %w", f.ExamID, err)
		}
		if ex.ID == 0 {
			ex.ID = f.ExamID
		}
		return ex.ID, nil
	}

	q := url.Values{}
	q.Set("anio", strconv.Itoa(f.Year))
	q.Set("tipoExamenId", strconv.FormatInt(f.ExamTypeID, 10))
	q.Set("areaId", strconv.FormatInt(f.AreaID, 10))

	items := make([]Exam, 0)
	if err := r.api.Get(ctx, "/examenes", q, &items); err != nil {
		return 0, fmt.Errorf("search exams: %w", err)
	}
	if len(items) != 1 {
		return 0, nil
	}
	return items[0].ID, nil
}
