package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/audit"
	"github.com/trezcool/bursar/core/enrollment"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("payment", nil)
	ErrNotEnrolled = core.NewValidationError(nil, core.FieldError{
		Field: "academic_year_id", Error: "the student is not enrolled in this academic year",
	})
)

type (
	Repository interface {
		// InsertPayment assigns the ID.
		InsertPayment(ctx context.Context, p Payment) (Payment, error)
		GetPayment(ctx context.Context, id int) (Payment, error)
		// ListPayments returns the ledger of a (student, academic year) pair, oldest first.
		ListPayments(ctx context.Context, studentID, academicYearID int) ([]Payment, error)
		QueryPayments(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Payment, error)
		UpdatePayment(ctx context.Context, id int, changes map[Field]interface{}, updatedAt time.Time) (Payment, error)
	}

	Service struct {
		repo        Repository
		enrollments enrollment.Repository
		auditor     *audit.Service
	}
)

func NewService(repo Repository, enrollments enrollment.Repository, auditor *audit.Service) *Service {
	return &Service{repo: repo, enrollments: enrollments, auditor: auditor}
}

// Record appends a payment to the ledger of an enrolled student on behalf of the context principal.
func (svc *Service) Record(ctx context.Context, np NewPayment) (Payment, error) {
	principal, err := core.MustPrincipal(ctx)
	if err != nil {
		return Payment{}, err
	}
	if _, err := svc.enrollments.FindEnrollment(ctx, np.StudentID, np.AcademicYearID); err != nil {
		if core.IsNotFound(err) {
			return Payment{}, ErrNotEnrolled
		}
		return Payment{}, errors.Wrap(err, "finding enrollment")
	}

	now := time.Now().UTC()
	paidOn := core.TruncateDay(now)
	if np.PaymentDate != "" {
		paidOn, _ = time.Parse(dateLayout, np.PaymentDate)
	}
	status := np.Status
	if status == "" {
		status = StatusCompleted
	}

	p, err := svc.repo.InsertPayment(ctx, Payment{
		StudentID:       np.StudentID,
		AcademicYearID:  np.AcademicYearID,
		Amount:          core.RoundMoney(np.Amount),
		PaymentDate:     paidOn,
		PaymentType:     np.PaymentType,
		PaymentMethod:   np.PaymentMethod,
		ReferenceNumber: null.NewString(np.ReferenceNumber, np.ReferenceNumber != ""),
		Status:          status,
		Notes:           np.Notes,
		CreatedBy:       principal.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Payment{}, errors.Wrap(err, "inserting payment")
	}

	svc.auditor.Record(ctx, audit.ActionCreate, audit.EntityPayment, p.ID, map[string]interface{}{
		"student_id":       p.StudentID,
		"academic_year_id": p.AcademicYearID,
		"amount":           p.Amount.StringFixed(2),
		"status":           p.Status,
	})
	return p, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Payment, error) {
	return svc.repo.GetPayment(ctx, id)
}

func (svc *Service) List(ctx context.Context, studentID, academicYearID int) ([]Payment, error) {
	return svc.repo.ListPayments(ctx, studentID, academicYearID)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter, ordering...)
}

// Update overwrites the given fields (last write wins).
func (svc *Service) Update(ctx context.Context, id int, up UpdatePayment) (Payment, error) {
	changes := up.Changes()
	if len(changes) == 0 {
		return svc.repo.GetPayment(ctx, id)
	}
	p, err := svc.repo.UpdatePayment(ctx, id, changes, time.Now().UTC())
	if err != nil {
		return Payment{}, err
	}

	details := make(map[string]interface{}, len(changes))
	for f := range changes {
		details[string(f)] = fieldValue(p, f)
	}
	svc.auditor.Record(ctx, audit.ActionUpdate, audit.EntityPayment, p.ID, details)
	return p, nil
}

func fieldValue(p Payment, f Field) interface{} {
	switch f {
	case FieldAmount:
		return p.Amount.StringFixed(2)
	case FieldPaymentDate:
		return p.PaymentDate.Format(dateLayout)
	case FieldPaymentType:
		return p.PaymentType
	case FieldPaymentMethod:
		return p.PaymentMethod
	case FieldReferenceNumber:
		return p.ReferenceNumber.String
	case FieldStatus:
		return p.Status
	default:
		return p.Notes
	}
}
