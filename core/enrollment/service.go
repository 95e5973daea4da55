package enrollment

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/student"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("enrollment", nil)
	ErrAlreadyEnrolled = core.NewValidationError(nil, core.FieldError{
		Field: "academic_year_id", Error: "the student is already enrolled in this academic year",
	})
	ErrWithdrawn = core.NewValidationError(nil, core.FieldError{Field: "status", Error: "the enrollment is withdrawn"})

	errReductionTooHigh = errors.New("reduction cannot exceed the tuition fee")
)

type (
	Repository interface {
		// CreateEnrollment returns ErrAlreadyEnrolled when the (student, academic year) pair exists.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, id int) (Enrollment, error)
		FindEnrollment(ctx context.Context, studentID, academicYearID int) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Enrollment, error)
		UpdateEnrollment(ctx context.Context, id int, changes map[Field]interface{}, updatedAt time.Time) (Enrollment, error)
	}

	Service struct {
		repo     Repository
		students student.Repository
		years    academicyear.Repository
	}
)

func NewService(repo Repository, students student.Repository, years academicyear.Repository) *Service {
	return &Service{repo: repo, students: students, years: years}
}

// Enroll binds an existing student to an existing academic year.
func (svc *Service) Enroll(ctx context.Context, ne NewEnrollment) (Enrollment, error) {
	if _, err := svc.students.GetStudent(ctx, ne.StudentID); err != nil {
		return Enrollment{}, pkgerrors.Wrap(err, "getting student")
	}
	year, err := svc.years.GetAcademicYear(ctx, ne.AcademicYearID)
	if err != nil {
		return Enrollment{}, pkgerrors.Wrap(err, "getting academic year")
	}

	now := time.Now().UTC()
	enrolledOn := core.TruncateDay(now)
	if ne.EnrollmentDate != "" {
		enrolledOn, _ = time.Parse(dateLayout, ne.EnrollmentDate)
	} else if enrolledOn.Before(year.StartDate) {
		enrolledOn = year.StartDate
	}

	e := Enrollment{
		StudentID:             ne.StudentID,
		AcademicYearID:        ne.AcademicYearID,
		Grade:                 ne.Grade,
		Section:               ne.Section,
		TuitionFee:            ne.TuitionFee,
		DiscountPercentage:    ne.DiscountPercentage,
		DiscountAmount:        ne.DiscountAmount,
		ScholarshipPercentage: ne.ScholarshipPercentage,
		ScholarshipAmount:     ne.ScholarshipAmount,
		EnrollmentDate:        enrolledOn,
		Status:                StatusActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.Sync(); err != nil {
		return Enrollment{}, err
	}
	return svc.repo.CreateEnrollment(ctx, e)
}

func (svc *Service) Get(ctx context.Context, id int) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, id)
}

func (svc *Service) Find(ctx context.Context, studentID, academicYearID int) (Enrollment, error) {
	return svc.repo.FindEnrollment(ctx, studentID, academicYearID)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, orig Enrollment, ue UpdateEnrollment) (Enrollment, error) {
	if orig.Status == StatusWithdrawn {
		return Enrollment{}, ErrWithdrawn
	}
	updated := orig
	if err := ue.Apply(&updated); err != nil {
		return Enrollment{}, err
	}
	changes := Diff(orig, updated)
	if len(changes) == 0 {
		return orig, nil
	}
	return svc.repo.UpdateEnrollment(ctx, orig.ID, changes, time.Now().UTC())
}

// Withdraw ends the enrollment without deleting it; its payments stay in the ledger.
func (svc *Service) Withdraw(ctx context.Context, id int) (Enrollment, error) {
	changes := map[Field]interface{}{FieldStatus: StatusWithdrawn}
	return svc.repo.UpdateEnrollment(ctx, id, changes, time.Now().UTC())
}
