package academicyear

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bursar/core"
)

const dateLayout = "2006-01-02"

type AcademicYear struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contains reports whether day falls within the year's bounds (inclusive).
func (ay AcademicYear) Contains(day time.Time) bool {
	day = core.TruncateDay(day.UTC())
	return !day.Before(ay.StartDate) && !day.After(ay.EndDate)
}

type NewAcademicYear struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	IsCurrent bool   `json:"is_current"`
}

func (na *NewAcademicYear) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	if err := validate.Struct(na); err != nil {
		return err
	}
	_, _, err := parseBounds(na.StartDate, na.EndDate)
	return err
}

// Bounds returns the parsed start & end dates. Validate must have been called.
func (na NewAcademicYear) Bounds() (time.Time, time.Time) {
	start, end, _ := parseBounds(na.StartDate, na.EndDate)
	return start, end
}

type UpdateAcademicYear struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=50"`
	StartDate *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// Validate checks the update against the stored year so date bounds stay ordered.
func (ua *UpdateAcademicYear) Validate(validate *validator.Validate, orig AcademicYear) error {
	if ua.Name != nil {
		*ua.Name = core.CleanString(*ua.Name)
	}
	if err := validate.Struct(ua); err != nil {
		return err
	}
	start, end := orig.StartDate.Format(dateLayout), orig.EndDate.Format(dateLayout)
	if ua.StartDate != nil {
		start = *ua.StartDate
	}
	if ua.EndDate != nil {
		end = *ua.EndDate
	}
	_, _, err := parseBounds(start, end)
	return err
}

// Apply copies the changes onto ay. Validate must have been called.
func (ua UpdateAcademicYear) Apply(ay *AcademicYear) {
	if ua.Name != nil {
		ay.Name = *ua.Name
	}
	if ua.StartDate != nil {
		ay.StartDate, _ = time.Parse(dateLayout, *ua.StartDate)
	}
	if ua.EndDate != nil {
		ay.EndDate, _ = time.Parse(dateLayout, *ua.EndDate)
	}
}

func parseBounds(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return s, s, core.NewValidationError(err, core.FieldError{Field: "start_date", Error: "invalid date"})
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return s, e, core.NewValidationError(err, core.FieldError{Field: "end_date", Error: "invalid date"})
	}
	if !e.After(s) {
		return s, e, ErrInvalidBounds
	}
	return s, e, nil
}
