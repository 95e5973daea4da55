package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

const dateLayout = "2006-01-02"

// Statuses
const (
	StatusActive    = "active"
	StatusWithdrawn = "withdrawn"
)

var hundred = decimal.NewFromInt(100)

// Enrollment binds a student to grade, section & fee terms within one academic year.
type Enrollment struct {
	ID                    int             `json:"id"`
	StudentID             int             `json:"student_id"`
	AcademicYearID        int             `json:"academic_year_id"`
	Grade                 string          `json:"grade"`
	Section               string          `json:"section"`
	TuitionFee            decimal.Decimal `json:"tuition_fee"`
	DiscountPercentage    decimal.Decimal `json:"discount_percentage"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	ScholarshipPercentage decimal.Decimal `json:"scholarship_percentage"`
	ScholarshipAmount     decimal.Decimal `json:"scholarship_amount"`
	EnrollmentDate        time.Time       `json:"enrollment_date"`
	Status                string          `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Sync derives the discount & scholarship amounts from their percentages, or the percentages
// from the amounts when no percentage is set.
func (e *Enrollment) Sync() error {
	var err error
	e.DiscountPercentage, e.DiscountAmount, err = syncReduction(e.TuitionFee, e.DiscountPercentage, e.DiscountAmount)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "discount_amount", Error: err.Error()})
	}
	e.ScholarshipPercentage, e.ScholarshipAmount, err = syncReduction(e.TuitionFee, e.ScholarshipPercentage, e.ScholarshipAmount)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "scholarship_amount", Error: err.Error()})
	}
	return nil
}

func syncReduction(fee, pct, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	switch {
	case pct.IsPositive():
		amount = core.Percent(fee, pct)
	case amount.IsPositive():
		if amount.GreaterThan(fee) {
			return pct, amount, errReductionTooHigh
		}
		pct = decimal.Zero
		if fee.IsPositive() {
			pct = amount.Mul(hundred).Div(fee).Round(2)
		}
	default:
		pct, amount = decimal.Zero, decimal.Zero
	}
	return pct, amount, nil
}

type NewEnrollment struct {
	StudentID             int             `json:"student_id" validate:"required,gt=0"`
	AcademicYearID        int             `json:"academic_year_id" validate:"required,gt=0"`
	Grade                 string          `json:"grade" validate:"omitempty,max=30"`
	Section               string          `json:"section" validate:"omitempty,max=30"`
	TuitionFee            decimal.Decimal `json:"tuition_fee" validate:"gte=0,money"`
	DiscountPercentage    decimal.Decimal `json:"discount_percentage" validate:"gte=0,lte=100,money"`
	DiscountAmount        decimal.Decimal `json:"discount_amount" validate:"gte=0,money"`
	ScholarshipPercentage decimal.Decimal `json:"scholarship_percentage" validate:"gte=0,lte=100,money"`
	ScholarshipAmount     decimal.Decimal `json:"scholarship_amount" validate:"gte=0,money"`
	EnrollmentDate        string          `json:"enrollment_date" validate:"omitempty,datetime=2006-01-02"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.Grade = core.CleanString(ne.Grade)
	ne.Section = core.CleanString(ne.Section)
	ne.EnrollmentDate = core.CleanString(ne.EnrollmentDate)
	return validate.Struct(ne)
}

// UpdateEnrollment holds the fields to change; nil fields are left untouched.
type UpdateEnrollment struct {
	Grade                 *string          `json:"grade" validate:"omitempty,max=30"`
	Section               *string          `json:"section" validate:"omitempty,max=30"`
	TuitionFee            *decimal.Decimal `json:"tuition_fee" validate:"omitempty,gte=0,money"`
	DiscountPercentage    *decimal.Decimal `json:"discount_percentage" validate:"omitempty,gte=0,lte=100,money"`
	DiscountAmount        *decimal.Decimal `json:"discount_amount" validate:"omitempty,gte=0,money"`
	ScholarshipPercentage *decimal.Decimal `json:"scholarship_percentage" validate:"omitempty,gte=0,lte=100,money"`
	ScholarshipAmount     *decimal.Decimal `json:"scholarship_amount" validate:"omitempty,gte=0,money"`
	EnrollmentDate        *string          `json:"enrollment_date" validate:"omitempty,datetime=2006-01-02"`
}

func (ue *UpdateEnrollment) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{ue.Grade, ue.Section, ue.EnrollmentDate} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(ue)
}

// Apply copies the changes onto e and re-syncs the reductions against the resulting fee.
// An amount given without its percentage becomes authoritative.
func (ue UpdateEnrollment) Apply(e *Enrollment) error {
	if ue.Grade != nil {
		e.Grade = *ue.Grade
	}
	if ue.Section != nil {
		e.Section = *ue.Section
	}
	if ue.TuitionFee != nil {
		e.TuitionFee = *ue.TuitionFee
	}
	if ue.DiscountPercentage != nil {
		e.DiscountPercentage = *ue.DiscountPercentage
	}
	if ue.DiscountAmount != nil {
		e.DiscountAmount = *ue.DiscountAmount
		if ue.DiscountPercentage == nil {
			e.DiscountPercentage = decimal.Zero
		}
	}
	if ue.ScholarshipPercentage != nil {
		e.ScholarshipPercentage = *ue.ScholarshipPercentage
	}
	if ue.ScholarshipAmount != nil {
		e.ScholarshipAmount = *ue.ScholarshipAmount
		if ue.ScholarshipPercentage == nil {
			e.ScholarshipPercentage = decimal.Zero
		}
	}
	if ue.EnrollmentDate != nil {
		e.EnrollmentDate, _ = time.Parse(dateLayout, *ue.EnrollmentDate)
	}
	return e.Sync()
}

// Field names an Enrollment column that may be updated.
type Field string

const (
	FieldGrade                 Field = "grade"
	FieldSection               Field = "section"
	FieldTuitionFee            Field = "tuition_fee"
	FieldDiscountPercentage    Field = "discount_percentage"
	FieldDiscountAmount        Field = "discount_amount"
	FieldScholarshipPercentage Field = "scholarship_percentage"
	FieldScholarshipAmount     Field = "scholarship_amount"
	FieldEnrollmentDate        Field = "enrollment_date"
	FieldStatus                Field = "status"
)

// Diff lists the fields of updated that differ from orig.
func Diff(orig, updated Enrollment) map[Field]interface{} {
	changes := make(map[Field]interface{})
	if orig.Grade != updated.Grade {
		changes[FieldGrade] = updated.Grade
	}
	if orig.Section != updated.Section {
		changes[FieldSection] = updated.Section
	}
	decimals := []struct {
		f        Field
		old, new decimal.Decimal
	}{
		{FieldTuitionFee, orig.TuitionFee, updated.TuitionFee},
		{FieldDiscountPercentage, orig.DiscountPercentage, updated.DiscountPercentage},
		{FieldDiscountAmount, orig.DiscountAmount, updated.DiscountAmount},
		{FieldScholarshipPercentage, orig.ScholarshipPercentage, updated.ScholarshipPercentage},
		{FieldScholarshipAmount, orig.ScholarshipAmount, updated.ScholarshipAmount},
	}
	for _, d := range decimals {
		if !d.old.Equal(d.new) {
			changes[d.f] = d.new
		}
	}
	if !orig.EnrollmentDate.Equal(updated.EnrollmentDate) {
		changes[FieldEnrollmentDate] = updated.EnrollmentDate
	}
	if orig.Status != updated.Status {
		changes[FieldStatus] = updated.Status
	}
	return changes
}

type QueryFilter struct {
	StudentID      int    `query:"student_id"`
	AcademicYearID int    `query:"academic_year_id"`
	Status         string `query:"status"`
	Grade          string `query:"grade"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Grade = core.CleanString(qf.Grade)
}
