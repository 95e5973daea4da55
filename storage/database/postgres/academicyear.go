package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/academicyear"
)

type (
	academicYearRepository struct {
		db core.DB
	}

	academicYearRow struct {
		ID        int       `db:"id"`
		Name      string    `db:"name"`
		StartDate time.Time `db:"start_date"`
		EndDate   time.Time `db:"end_date"`
		IsCurrent bool      `db:"is_current"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

var (
	_ academicyear.Repository = (*academicYearRepository)(nil) // interface compliance check

	academicYearColumns = []string{"id", "name", "start_date", "end_date", "is_current", "created_at", "updated_at"}
)

func NewAcademicYearRepository(db core.DB) academicyear.Repository {
	return &academicYearRepository{db: db}
}

func (r academicYearRow) toAcademicYear() academicyear.AcademicYear {
	return academicyear.AcademicYear{
		ID:        r.ID,
		Name:      r.Name,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.UTC(),
		IsCurrent: r.IsCurrent,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func trapYearErr(err error, msg string) error {
	if code, constraint := pqViolation(err); code == codeUniqueViolation && constraint == "academic_years_name_key" {
		return academicyear.ErrNameExists
	}
	return trapNoRowsErr(err, academicyear.ErrNotFound, msg)
}

func clearCurrentYear(ctx context.Context, tx *sqlx.Tx) error {
	_, err := execute(ctx, tx, psql.Update("academic_years").Set("is_current", false).Where(sq.Eq{"is_current": true}))
	return errors.Wrap(err, "clearing current academic year")
}

func (repo *academicYearRepository) CreateAcademicYear(ctx context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	var row academicYearRow
	err := withTx(ctx, repo.db, nil, func(tx *sqlx.Tx) error {
		if ay.IsCurrent {
			if err := clearCurrentYear(ctx, tx); err != nil {
				return err
			}
		}
		q := psql.Insert("academic_years").SetMap(map[string]interface{}{
			"name":       ay.Name,
			"start_date": ay.StartDate.Format(dateLayout),
			"end_date":   ay.EndDate.Format(dateLayout),
			"is_current": ay.IsCurrent,
			"created_at": ay.CreatedAt.UTC(),
			"updated_at": ay.UpdatedAt.UTC(),
		}).Suffix(returning(academicYearColumns))
		return get(ctx, tx, &row, q)
	})
	if err != nil {
		return academicyear.AcademicYear{}, trapYearErr(err, "inserting academic year")
	}
	return row.toAcademicYear(), nil
}

func (repo *academicYearRepository) GetAcademicYear(ctx context.Context, id int) (academicyear.AcademicYear, error) {
	var row academicYearRow
	q := psql.Select(academicYearColumns...).From("academic_years").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return academicyear.AcademicYear{}, trapNoRowsErr(err, academicyear.ErrNotFound, "getting academic year")
	}
	return row.toAcademicYear(), nil
}

func (repo *academicYearRepository) GetCurrentAcademicYear(ctx context.Context) (academicyear.AcademicYear, error) {
	var row academicYearRow
	q := psql.Select(academicYearColumns...).From("academic_years").Where(sq.Eq{"is_current": true})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return academicyear.AcademicYear{}, trapNoRowsErr(err, academicyear.ErrNoCurrent, "getting current academic year")
	}
	return row.toAcademicYear(), nil
}

func (repo *academicYearRepository) ListAcademicYears(ctx context.Context) ([]academicyear.AcademicYear, error) {
	var rows []academicYearRow
	q := psql.Select(academicYearColumns...).From("academic_years").OrderBy("start_date DESC")
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing academic years")
	}
	years := make([]academicyear.AcademicYear, 0, len(rows))
	for _, r := range rows {
		years = append(years, r.toAcademicYear())
	}
	return years, nil
}

func (repo *academicYearRepository) UpdateAcademicYear(ctx context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	var row academicYearRow
	q := psql.Update("academic_years").SetMap(map[string]interface{}{
		"name":       ay.Name,
		"start_date": ay.StartDate.Format(dateLayout),
		"end_date":   ay.EndDate.Format(dateLayout),
		"updated_at": ay.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": ay.ID}).Suffix(returning(academicYearColumns))
	if err := get(ctx, repo.db, &row, q); err != nil {
		return academicyear.AcademicYear{}, trapYearErr(err, "updating academic year")
	}
	return row.toAcademicYear(), nil
}

func (repo *academicYearRepository) SetCurrentAcademicYear(ctx context.Context, id int) (academicyear.AcademicYear, error) {
	var row academicYearRow
	err := withTx(ctx, repo.db, nil, func(tx *sqlx.Tx) error {
		if err := clearCurrentYear(ctx, tx); err != nil {
			return err
		}
		q := psql.Update("academic_years").
			SetMap(map[string]interface{}{"is_current": true, "updated_at": time.Now().UTC()}).
			Where(sq.Eq{"id": id}).
			Suffix(returning(academicYearColumns))
		return get(ctx, tx, &row, q)
	})
	if err != nil {
		return academicyear.AcademicYear{}, trapNoRowsErr(err, academicyear.ErrNotFound, "setting current academic year")
	}
	return row.toAcademicYear(), nil
}
