package student

import (
	"context"
	"time"

	"github.com/trezcool/bursar/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("student", nil)
	ErrNumberExists = core.NewValidationError(nil, core.FieldError{
		Field: "student_number", Error: "a student with this number already exists",
	})
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, id int) (Student, error)
		// QueryStudents matches QueryFilter.Search case-insensitively against names and student number.
		QueryStudents(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, id int, changes map[Field]interface{}, updatedAt time.Time) (Student, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		StudentNumber: ns.StudentNumber,
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		Email:         ns.Email,
		Phone:         ns.Phone,
		GuardianName:  ns.GuardianName,
		GuardianEmail: ns.GuardianEmail,
		GuardianPhone: ns.GuardianPhone,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) Get(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, id int, us UpdateStudent) (Student, error) {
	changes := us.Changes()
	if len(changes) == 0 {
		return svc.repo.GetStudent(ctx, id)
	}
	return svc.repo.UpdateStudent(ctx, id, changes, time.Now().UTC())
}
