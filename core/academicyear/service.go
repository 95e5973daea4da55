package academicyear

import (
	"context"
	"time"

	"github.com/trezcool/bursar/core"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("academic year", nil)
	ErrNoCurrent     = core.NewNotFoundError("current academic year", nil)
	ErrNameExists    = core.NewValidationError(nil, core.FieldError{Field: "name", Error: "an academic year with this name already exists"})
	ErrInvalidBounds = core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "end_date must be after start_date"})
)

type (
	Repository interface {
		// CreateAcademicYear clears the current flag of other years when ay.IsCurrent is set.
		CreateAcademicYear(ctx context.Context, ay AcademicYear) (AcademicYear, error)
		GetAcademicYear(ctx context.Context, id int) (AcademicYear, error)
		// GetCurrentAcademicYear returns ErrNoCurrent when no year is flagged.
		GetCurrentAcademicYear(ctx context.Context) (AcademicYear, error)
		ListAcademicYears(ctx context.Context) ([]AcademicYear, error)
		UpdateAcademicYear(ctx context.Context, ay AcademicYear) (AcademicYear, error)
		// SetCurrentAcademicYear flags id as current and clears every other year atomically.
		SetCurrentAcademicYear(ctx context.Context, id int) (AcademicYear, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, na NewAcademicYear) (AcademicYear, error) {
	start, end := na.Bounds()
	now := time.Now().UTC()
	return svc.repo.CreateAcademicYear(ctx, AcademicYear{
		Name:      na.Name,
		StartDate: start,
		EndDate:   end,
		IsCurrent: na.IsCurrent,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Get(ctx context.Context, id int) (AcademicYear, error) {
	return svc.repo.GetAcademicYear(ctx, id)
}

func (svc *Service) Current(ctx context.Context) (AcademicYear, error) {
	return svc.repo.GetCurrentAcademicYear(ctx)
}

func (svc *Service) List(ctx context.Context) ([]AcademicYear, error) {
	return svc.repo.ListAcademicYears(ctx)
}

func (svc *Service) Update(ctx context.Context, ay AcademicYear, ua UpdateAcademicYear) (AcademicYear, error) {
	ua.Apply(&ay)
	ay.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAcademicYear(ctx, ay)
}

func (svc *Service) SetCurrent(ctx context.Context, id int) (AcademicYear, error) {
	return svc.repo.SetCurrentAcademicYear(ctx, id)
}
