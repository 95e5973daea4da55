package payment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
)

const dateLayout = "2006-01-02"

// Statuses
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

// Types
const (
	TypeTuition      = "tuition"
	TypeRegistration = "registration"
	TypeExam         = "exam"
	TypeTransport    = "transport"
	TypeUniform      = "uniform"
	TypeOther        = "other"
)

// Methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodCard         = "card"
	MethodMobileMoney  = "mobile_money"
	MethodCheque       = "cheque"
)

// Payment is one event of the ledger of a (student, academic year) pair.
type Payment struct {
	ID              int             `json:"id"`
	StudentID       int             `json:"student_id"`
	AcademicYearID  int             `json:"academic_year_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     time.Time       `json:"payment_date"`
	PaymentType     string          `json:"payment_type"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber null.String     `json:"reference_number"`
	Status          string          `json:"status"`
	Notes           string          `json:"notes"`
	CreatedBy       int             `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CountsAsPaid reports whether the payment contributes to the total paid.
// Pending payments do count; only failed ones are left out.
func (p Payment) CountsAsPaid() bool {
	return p.Status != StatusFailed
}

type NewPayment struct {
	StudentID       int             `json:"student_id" validate:"required,gt=0"`
	AcademicYearID  int             `json:"academic_year_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0,money"`
	PaymentDate     string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentType     string          `json:"payment_type" validate:"required,oneof=tuition registration exam transport uniform other"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=cash bank_transfer card mobile_money cheque"`
	ReferenceNumber string          `json:"reference_number" validate:"omitempty,max=100"`
	Status          string          `json:"status" validate:"omitempty,oneof=completed pending failed"`
	Notes           string          `json:"notes" validate:"omitempty,max=1000"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.PaymentDate = core.CleanString(np.PaymentDate)
	np.PaymentType = core.CleanString(np.PaymentType, true /* lower */)
	np.PaymentMethod = core.CleanString(np.PaymentMethod, true /* lower */)
	np.ReferenceNumber = core.CleanString(np.ReferenceNumber)
	np.Status = core.CleanString(np.Status, true /* lower */)
	np.Notes = core.CleanString(np.Notes)
	return validate.Struct(np)
}

// UpdatePayment holds the fields to change; nil fields are left untouched.
type UpdatePayment struct {
	Amount          *decimal.Decimal `json:"amount" validate:"omitempty,gt=0,money"`
	PaymentDate     *string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentType     *string          `json:"payment_type" validate:"omitempty,oneof=tuition registration exam transport uniform other"`
	PaymentMethod   *string          `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer card mobile_money cheque"`
	ReferenceNumber *string          `json:"reference_number" validate:"omitempty,max=100"`
	Status          *string          `json:"status" validate:"omitempty,oneof=completed pending failed"`
	Notes           *string          `json:"notes" validate:"omitempty,max=1000"`
}

func (up *UpdatePayment) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{up.PaymentDate, up.ReferenceNumber, up.Notes} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	for _, fld := range []*string{up.PaymentType, up.PaymentMethod, up.Status} {
		if fld != nil {
			*fld = core.CleanString(*fld, true /* lower */)
		}
	}
	return validate.Struct(up)
}

// Field names a Payment column that may be updated.
type Field string

const (
	FieldAmount          Field = "amount"
	FieldPaymentDate     Field = "payment_date"
	FieldPaymentType     Field = "payment_type"
	FieldPaymentMethod   Field = "payment_method"
	FieldReferenceNumber Field = "reference_number"
	FieldStatus          Field = "status"
	FieldNotes           Field = "notes"
)

// Changes lists the set fields of the update with their storage values.
func (up UpdatePayment) Changes() map[Field]interface{} {
	changes := make(map[Field]interface{})
	if up.Amount != nil {
		changes[FieldAmount] = *up.Amount
	}
	if up.PaymentDate != nil {
		day, _ := time.Parse(dateLayout, *up.PaymentDate)
		changes[FieldPaymentDate] = day
	}
	if up.PaymentType != nil {
		changes[FieldPaymentType] = *up.PaymentType
	}
	if up.PaymentMethod != nil {
		changes[FieldPaymentMethod] = *up.PaymentMethod
	}
	if up.ReferenceNumber != nil {
		changes[FieldReferenceNumber] = null.NewString(*up.ReferenceNumber, *up.ReferenceNumber != "")
	}
	if up.Status != nil {
		changes[FieldStatus] = *up.Status
	}
	if up.Notes != nil {
		changes[FieldNotes] = *up.Notes
	}
	return changes
}

// Apply copies changes (as built by Changes) onto p.
func Apply(p *Payment, changes map[Field]interface{}) {
	for f, v := range changes {
		switch f {
		case FieldAmount:
			p.Amount = v.(decimal.Decimal)
		case FieldPaymentDate:
			p.PaymentDate = v.(time.Time)
		case FieldPaymentType:
			p.PaymentType = v.(string)
		case FieldPaymentMethod:
			p.PaymentMethod = v.(string)
		case FieldReferenceNumber:
			p.ReferenceNumber = v.(null.String)
		case FieldStatus:
			p.Status = v.(string)
		case FieldNotes:
			p.Notes = v.(string)
		}
	}
}

type QueryFilter struct {
	StudentID      int       `query:"student_id"`
	AcademicYearID int       `query:"academic_year_id"`
	Status         string    `query:"status"`
	PaymentType    string    `query:"payment_type"`
	PaymentMethod  string    `query:"payment_method"`
	DateFrom       time.Time `query:"date_from"`
	DateTo         time.Time `query:"date_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.PaymentType = core.CleanString(qf.PaymentType, true /* lower */)
	qf.PaymentMethod = core.CleanString(qf.PaymentMethod, true /* lower */)
}

// Match reports whether p satisfies every set field of the filter.
func (qf QueryFilter) Match(p Payment) bool {
	switch {
	case qf.StudentID != 0 && p.StudentID != qf.StudentID,
		qf.AcademicYearID != 0 && p.AcademicYearID != qf.AcademicYearID,
		qf.Status != "" && p.Status != qf.Status,
		qf.PaymentType != "" && p.PaymentType != qf.PaymentType,
		qf.PaymentMethod != "" && p.PaymentMethod != qf.PaymentMethod,
		!qf.DateFrom.IsZero() && p.PaymentDate.Before(core.TruncateDay(qf.DateFrom.UTC())),
		!qf.DateTo.IsZero() && p.PaymentDate.After(qf.DateTo.UTC()):
		return false
	}
	return true
}
