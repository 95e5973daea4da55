package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
)

type (
	studentRepository struct {
		db core.DB
	}

	studentRow struct {
		ID            int       `db:"id"`
		StudentNumber string    `db:"student_number"`
		FirstName     string    `db:"first_name"`
		LastName      string    `db:"last_name"`
		Email         string    `db:"email"`
		Phone         string    `db:"phone"`
		GuardianName  string    `db:"guardian_name"`
		GuardianEmail string    `db:"guardian_email"`
		GuardianPhone string    `db:"guardian_phone"`
		Status        string    `db:"status"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}
)

var (
	_ student.Repository = (*studentRepository)(nil) // interface compliance check

	studentColumns = []string{
		"id", "student_number", "first_name", "last_name", "email", "phone",
		"guardian_name", "guardian_email", "guardian_phone", "status", "created_at", "updated_at",
	}
	studentOrderBy = map[string]bool{"student_number": true, "first_name": true, "last_name": true, "created_at": true}

	studentFieldColumns = map[student.Field]string{
		student.FieldFirstName:     "first_name",
		student.FieldLastName:      "last_name",
		student.FieldEmail:         "email",
		student.FieldPhone:         "phone",
		student.FieldGuardianName:  "guardian_name",
		student.FieldGuardianEmail: "guardian_email",
		student.FieldGuardianPhone: "guardian_phone",
		student.FieldStatus:        "status",
	}
)

func NewStudentRepository(db core.DB) student.Repository {
	return &studentRepository{db: db}
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		ID:            r.ID,
		StudentNumber: r.StudentNumber,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		Phone:         r.Phone,
		GuardianName:  r.GuardianName,
		GuardianEmail: r.GuardianEmail,
		GuardianPhone: r.GuardianPhone,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	q := psql.Insert("students").SetMap(map[string]interface{}{
		"student_number": s.StudentNumber,
		"first_name":     s.FirstName,
		"last_name":      s.LastName,
		"email":          s.Email,
		"phone":          s.Phone,
		"guardian_name":  s.GuardianName,
		"guardian_email": s.GuardianEmail,
		"guardian_phone": s.GuardianPhone,
		"status":         s.Status,
		"created_at":     s.CreatedAt.UTC(),
		"updated_at":     s.UpdatedAt.UTC(),
	}).Suffix(returning(studentColumns))

	var row studentRow
	if err := get(ctx, repo.db, &row, q); err != nil {
		if code, _ := pqViolation(err); code == codeUniqueViolation {
			return student.Student{}, student.ErrNumberExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id int) (student.Student, error) {
	var row studentRow
	q := psql.Select(studentColumns...).From("students").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, ordering ...core.DBOrdering) ([]student.Student, error) {
	q := psql.Select(studentColumns...).From("students")
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"student_number": val},
			sq.Expr("(first_name || ' ' || last_name) ILIKE ?", val),
		})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	q = q.OrderBy(orderBy(ordering, studentOrderBy, "last_name ASC", "first_name ASC")...)

	var rows []studentRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, id int, changes map[student.Field]interface{}, updatedAt time.Time) (student.Student, error) {
	values := map[string]interface{}{"updated_at": updatedAt.UTC()}
	for f, v := range changes {
		if col, ok := studentFieldColumns[f]; ok {
			values[col] = v
		}
	}

	var row studentRow
	q := psql.Update("students").SetMap(values).Where(sq.Eq{"id": id}).Suffix(returning(studentColumns))
	if err := get(ctx, repo.db, &row, q); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "updating student")
	}
	return row.toStudent(), nil
}
