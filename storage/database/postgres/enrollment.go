package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/enrollment"
)

type (
	enrollmentRepository struct {
		db core.DB
	}

	enrollmentRow struct {
		ID                    int             `db:"id"`
		StudentID             int             `db:"student_id"`
		AcademicYearID        int             `db:"academic_year_id"`
		Grade                 string          `db:"grade"`
		Section               string          `db:"section"`
		TuitionFee            decimal.Decimal `db:"tuition_fee"`
		DiscountPercentage    decimal.Decimal `db:"discount_percentage"`
		DiscountAmount        decimal.Decimal `db:"discount_amount"`
		ScholarshipPercentage decimal.Decimal `db:"scholarship_percentage"`
		ScholarshipAmount     decimal.Decimal `db:"scholarship_amount"`
		EnrollmentDate        time.Time       `db:"enrollment_date"`
		Status                string          `db:"status"`
		CreatedAt             time.Time       `db:"created_at"`
		UpdatedAt             time.Time       `db:"updated_at"`
	}
)

var (
	_ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

	enrollmentColumns = []string{
		"id", "student_id", "academic_year_id", "grade", "section", "tuition_fee",
		"discount_percentage", "discount_amount", "scholarship_percentage", "scholarship_amount",
		"enrollment_date", "status", "created_at", "updated_at",
	}
	enrollmentOrderBy = map[string]bool{"enrollment_date": true, "grade": true, "tuition_fee": true, "created_at": true}

	enrollmentFieldColumns = map[enrollment.Field]string{
		enrollment.FieldGrade:                 "grade",
		enrollment.FieldSection:               "section",
		enrollment.FieldTuitionFee:            "tuition_fee",
		enrollment.FieldDiscountPercentage:    "discount_percentage",
		enrollment.FieldDiscountAmount:        "discount_amount",
		enrollment.FieldScholarshipPercentage: "scholarship_percentage",
		enrollment.FieldScholarshipAmount:     "scholarship_amount",
		enrollment.FieldEnrollmentDate:        "enrollment_date",
		enrollment.FieldStatus:                "status",
	}
)

func NewEnrollmentRepository(db core.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (r enrollmentRow) toEnrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:                    r.ID,
		StudentID:             r.StudentID,
		AcademicYearID:        r.AcademicYearID,
		Grade:                 r.Grade,
		Section:               r.Section,
		TuitionFee:            r.TuitionFee,
		DiscountPercentage:    r.DiscountPercentage,
		DiscountAmount:        r.DiscountAmount,
		ScholarshipPercentage: r.ScholarshipPercentage,
		ScholarshipAmount:     r.ScholarshipAmount,
		EnrollmentDate:        r.EnrollmentDate.UTC(),
		Status:                r.Status,
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func findEnrollmentQuery(studentID, academicYearID int) sq.SelectBuilder {
	return psql.Select(enrollmentColumns...).From("student_enrollments").
		Where(sq.Eq{"student_id": studentID, "academic_year_id": academicYearID})
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	q := psql.Insert("student_enrollments").SetMap(map[string]interface{}{
		"student_id":             e.StudentID,
		"academic_year_id":       e.AcademicYearID,
		"grade":                  e.Grade,
		"section":                e.Section,
		"tuition_fee":            e.TuitionFee,
		"discount_percentage":    e.DiscountPercentage,
		"discount_amount":        e.DiscountAmount,
		"scholarship_percentage": e.ScholarshipPercentage,
		"scholarship_amount":     e.ScholarshipAmount,
		"enrollment_date":        e.EnrollmentDate.Format(dateLayout),
		"status":                 e.Status,
		"created_at":             e.CreatedAt.UTC(),
		"updated_at":             e.UpdatedAt.UTC(),
	}).Suffix(returning(enrollmentColumns))

	var row enrollmentRow
	if err := get(ctx, repo.db, &row, q); err != nil {
		if code, _ := pqViolation(err); code == codeUniqueViolation {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id int) (enrollment.Enrollment, error) {
	var row enrollmentRow
	q := psql.Select(enrollmentColumns...).From("student_enrollments").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) FindEnrollment(ctx context.Context, studentID, academicYearID int) (enrollment.Enrollment, error) {
	var row enrollmentRow
	if err := get(ctx, repo.db, &row, findEnrollmentQuery(studentID, academicYearID)); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter, ordering ...core.DBOrdering) ([]enrollment.Enrollment, error) {
	where := sq.Eq{}
	if filter.StudentID != 0 {
		where["student_id"] = filter.StudentID
	}
	if filter.AcademicYearID != 0 {
		where["academic_year_id"] = filter.AcademicYearID
	}
	if filter.Status != "" {
		where["status"] = filter.Status
	}
	if filter.Grade != "" {
		where["grade"] = filter.Grade
	}
	q := psql.Select(enrollmentColumns...).From("student_enrollments").Where(where).
		OrderBy(orderBy(ordering, enrollmentOrderBy, "id ASC")...)

	var rows []enrollmentRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.toEnrollment())
	}
	return enrollments, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, id int, changes map[enrollment.Field]interface{}, updatedAt time.Time) (enrollment.Enrollment, error) {
	values := map[string]interface{}{"updated_at": updatedAt.UTC()}
	for f, v := range changes {
		col, ok := enrollmentFieldColumns[f]
		if !ok {
			continue
		}
		if day, isTime := v.(time.Time); isTime {
			v = day.Format(dateLayout)
		}
		values[col] = v
	}

	var row enrollmentRow
	q := psql.Update("student_enrollments").SetMap(values).Where(sq.Eq{"id": id}).Suffix(returning(enrollmentColumns))
	if err := get(ctx, repo.db, &row, q); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "updating enrollment")
	}
	return row.toEnrollment(), nil
}
