package memdb

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/enrollment"
)

type enrollmentRepository struct {
	db *table[enrollment.Enrollment]
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db.enrollments}
}

var enrollmentComparators = comparators[enrollment.Enrollment]{
	"enrollment_date": func(a, b enrollment.Enrollment) int { return compareTimes(a.EnrollmentDate, b.EnrollmentDate) },
	"grade":           func(a, b enrollment.Enrollment) int { return strings.Compare(a.Grade, b.Grade) },
	"tuition_fee":     func(a, b enrollment.Enrollment) int { return a.TuitionFee.Cmp(b.TuitionFee) },
	"created_at":      func(a, b enrollment.Enrollment) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

// find is called with the lock held.
func (repo *enrollmentRepository) find(studentID, academicYearID int) (enrollment.Enrollment, bool) {
	for _, e := range repo.db.rows {
		if e.StudentID == studentID && e.AcademicYearID == academicYearID {
			return e, true
		}
	}
	return enrollment.Enrollment{}, false
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, exists := repo.find(e.StudentID, e.AcademicYearID); exists {
		return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
	}
	e.ID = repo.db.nextID()
	repo.db.rows[e.ID] = e
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id int) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.rows[id]; ok {
		return e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) FindEnrollment(_ context.Context, studentID, academicYearID int) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.find(studentID, academicYearID); ok {
		return e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, filter enrollment.QueryFilter, ordering ...core.DBOrdering) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrollments := repo.db.filter(func(e enrollment.Enrollment) bool {
		switch {
		case filter.StudentID != 0 && e.StudentID != filter.StudentID,
			filter.AcademicYearID != 0 && e.AcademicYearID != filter.AcademicYearID,
			filter.Status != "" && e.Status != filter.Status,
			filter.Grade != "" && e.Grade != filter.Grade:
			return false
		}
		return true
	})
	sortRows(enrollments, enrollmentComparators, ordering)
	return enrollments, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, id int, changes map[enrollment.Field]interface{}, updatedAt time.Time) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.db.rows[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	for f, v := range changes {
		switch f {
		case enrollment.FieldGrade:
			e.Grade = v.(string)
		case enrollment.FieldSection:
			e.Section = v.(string)
		case enrollment.FieldStatus:
			e.Status = v.(string)
		case enrollment.FieldEnrollmentDate:
			e.EnrollmentDate = v.(time.Time)
		case enrollment.FieldTuitionFee:
			e.TuitionFee = v.(decimal.Decimal)
		case enrollment.FieldDiscountPercentage:
			e.DiscountPercentage = v.(decimal.Decimal)
		case enrollment.FieldDiscountAmount:
			e.DiscountAmount = v.(decimal.Decimal)
		case enrollment.FieldScholarshipPercentage:
			e.ScholarshipPercentage = v.(decimal.Decimal)
		case enrollment.FieldScholarshipAmount:
			e.ScholarshipAmount = v.(decimal.Decimal)
		}
	}
	e.UpdatedAt = updatedAt
	repo.db.rows[id] = e
	return e, nil
}
