package receipt

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
)

const numberDayLayout = "20060102"

// Receipt acknowledges exactly one payment. Its number never changes once issued.
type Receipt struct {
	ID             int         `json:"id"`
	ReceiptNumber  string      `json:"receipt_number"`
	SequenceDay    time.Time   `json:"-"`
	Sequence       int         `json:"-"`
	PaymentID      int         `json:"payment_id"`
	StudentID      int         `json:"student_id"`
	AcademicYearID int         `json:"academic_year_id"`
	CreatedBy      int         `json:"created_by"`
	CreatedAt      time.Time   `json:"created_at"`
	PDFPath        null.String `json:"pdf_path"`
	IsEmailed      bool        `json:"is_emailed"`
	EmailedAt      null.Time   `json:"emailed_at"`
}

func (r Receipt) HasPDF() bool {
	return r.PDFPath.Valid && r.PDFPath.String != ""
}

// Filename is the name under which the PDF is downloaded or attached.
func (r Receipt) Filename() string {
	return r.ReceiptNumber + ".pdf"
}

// FormatNumber builds prefix + YYYYMMDD + the 4-digit, zero-padded sequence.
func FormatNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s%s%04d", prefix, day.Format(numberDayLayout), seq)
}

type QueryFilter struct {
	StudentID      int    `query:"student_id"`
	AcademicYearID int    `query:"academic_year_id"`
	PaymentID      int    `query:"payment_id"`
	Emailed        string `query:"emailed"` // "true" | "false"
}

func (qf *QueryFilter) Clean() {
	qf.Emailed = core.CleanString(qf.Emailed, true /* lower */)
}

// Match reports whether r satisfies every set field of the filter.
func (qf QueryFilter) Match(r Receipt) bool {
	switch {
	case qf.StudentID != 0 && r.StudentID != qf.StudentID:
		return false
	case qf.AcademicYearID != 0 && r.AcademicYearID != qf.AcademicYearID:
		return false
	case qf.PaymentID != 0 && r.PaymentID != qf.PaymentID:
		return false
	case qf.Emailed == "true" && !r.IsEmailed, qf.Emailed == "false" && r.IsEmailed:
		return false
	}
	return true
}

// EmailRequest optionally overrides the recipients of a receipt email.
type EmailRequest struct {
	To []string `json:"to" validate:"omitempty,max=10,dive,email"`
}

func (er *EmailRequest) Validate(validate *validator.Validate) error {
	for i := range er.To {
		er.To[i] = core.CleanString(er.To[i], true /* lower */)
	}
	return validate.Struct(er)
}

func (er EmailRequest) Addresses() []mail.Address {
	addrs := make([]mail.Address, 0, len(er.To))
	for _, to := range er.To {
		addrs = append(addrs, mail.Address{Address: to})
	}
	return addrs
}
