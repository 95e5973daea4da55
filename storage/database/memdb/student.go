package memdb

import (
	"context"
	"strings"
	"time"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
)

type studentRepository struct {
	db *table[student.Student]
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.students}
}

var studentComparators = comparators[student.Student]{
	"student_number": func(a, b student.Student) int { return strings.Compare(a.StudentNumber, b.StudentNumber) },
	"first_name":     func(a, b student.Student) int { return strings.Compare(a.FirstName, b.FirstName) },
	"last_name":      func(a, b student.Student) int { return strings.Compare(a.LastName, b.LastName) },
	"created_at":     func(a, b student.Student) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.rows {
		if existing.StudentNumber == s.StudentNumber {
			return student.Student{}, student.ErrNumberExists
		}
	}
	s.ID = repo.db.nextID()
	repo.db.rows[s.ID] = s
	return s, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id int) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.rows[id]; ok {
		return s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter, ordering ...core.DBOrdering) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	students := repo.db.filter(func(s student.Student) bool {
		if search != "" &&
			!strings.Contains(strings.ToLower(s.FullName()), search) &&
			!strings.Contains(strings.ToLower(s.StudentNumber), search) {
			return false
		}
		return filter.Status == "" || s.Status == filter.Status
	})
	sortRows(students, studentComparators, ordering)
	return students, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, id int, changes map[student.Field]interface{}, updatedAt time.Time) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.rows[id]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	fields := map[student.Field]*string{
		student.FieldFirstName:     &s.FirstName,
		student.FieldLastName:      &s.LastName,
		student.FieldEmail:         &s.Email,
		student.FieldPhone:         &s.Phone,
		student.FieldGuardianName:  &s.GuardianName,
		student.FieldGuardianEmail: &s.GuardianEmail,
		student.FieldGuardianPhone: &s.GuardianPhone,
		student.FieldStatus:        &s.Status,
	}
	for f, v := range changes {
		if dst, ok := fields[f]; ok {
			*dst = v.(string)
		}
	}
	s.UpdatedAt = updatedAt
	repo.db.rows[id] = s
	return s, nil
}
