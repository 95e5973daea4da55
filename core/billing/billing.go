// Package billing computes what a student owes for an academic year.
// Every balance figure shown to users goes through Calculate.
package billing

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/payment"
)

// Balance is derived on demand and never stored.
type Balance struct {
	TuitionFee            decimal.Decimal `json:"tuition_fee"`
	DiscountPercentage    decimal.Decimal `json:"discount_percentage"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	ScholarshipPercentage decimal.Decimal `json:"scholarship_percentage"`
	ScholarshipAmount     decimal.Decimal `json:"scholarship_amount"`
	TotalDue              decimal.Decimal `json:"total_due"`
	TotalPaid             decimal.Decimal `json:"total_paid"`
	Balance               decimal.Decimal `json:"balance"`
	// PaidInFull is set for an enrollment whose balance is zero or negative.
	PaidInFull bool `json:"paid_in_full"`
	// Credit is the overpaid amount, as a positive figure.
	Credit decimal.Decimal `json:"credit"`
}

// Calculate combines an enrollment with its ledger. A nil enrollment yields the zero Balance,
// whatever payments are given. It has no side effects and never fails.
func Calculate(e *enrollment.Enrollment, payments []payment.Payment) Balance {
	zero := decimal.Zero
	if e == nil {
		return Balance{
			TuitionFee:            zero,
			DiscountPercentage:    zero,
			DiscountAmount:        zero,
			ScholarshipPercentage: zero,
			ScholarshipAmount:     zero,
			TotalDue:              zero,
			TotalPaid:             zero,
			Balance:               zero,
			Credit:                zero,
		}
	}

	fee := core.RoundMoney(e.TuitionFee)
	discount := reduction(fee, e.DiscountPercentage, e.DiscountAmount)
	scholarship := reduction(fee, e.ScholarshipPercentage, e.ScholarshipAmount)
	due := fee.Sub(discount).Sub(scholarship)

	paid := zero
	for _, p := range payments {
		if p.CountsAsPaid() {
			paid = paid.Add(p.Amount)
		}
	}
	paid = core.RoundMoney(paid)
	balance := due.Sub(paid)

	credit := zero
	if balance.IsNegative() {
		credit = balance.Neg()
	}

	return Balance{
		TuitionFee:            fee,
		DiscountPercentage:    e.DiscountPercentage.Round(2),
		DiscountAmount:        discount,
		ScholarshipPercentage: e.ScholarshipPercentage.Round(2),
		ScholarshipAmount:     scholarship,
		TotalDue:              due,
		TotalPaid:             paid,
		Balance:               balance,
		PaidInFull:            !balance.IsPositive(),
		Credit:                credit,
	}
}

// reduction recomputes the amount from a positive percentage, else trusts the stored amount.
func reduction(fee, pct, stored decimal.Decimal) decimal.Decimal {
	if pct.IsPositive() {
		return core.Percent(fee, pct)
	}
	return core.RoundMoney(stored)
}

// Ledger reads an enrollment (nil when absent) and its payments from one consistent snapshot.
type Ledger interface {
	LedgerSnapshot(ctx context.Context, studentID, academicYearID int) (*enrollment.Enrollment, []payment.Payment, error)
}

type Service struct {
	ledger Ledger
}

func NewService(ledger Ledger) *Service {
	return &Service{ledger: ledger}
}

// Balance recomputes the balance of a (student, academic year) pair from current ledger state.
func (svc *Service) Balance(ctx context.Context, studentID, academicYearID int) (Balance, error) {
	e, payments, err := svc.ledger.LedgerSnapshot(ctx, studentID, academicYearID)
	if err != nil {
		return Balance{}, errors.Wrap(err, "reading ledger snapshot")
	}
	return Calculate(e, payments), nil
}

// BalanceAfter recomputes the balance as it stood right after p was recorded: only payments
// dated before p, or on the same date with a lower or equal id, are counted.
func (svc *Service) BalanceAfter(ctx context.Context, p payment.Payment) (Balance, error) {
	e, payments, err := svc.ledger.LedgerSnapshot(ctx, p.StudentID, p.AcademicYearID)
	if err != nil {
		return Balance{}, errors.Wrap(err, "reading ledger snapshot")
	}
	upTo := make([]payment.Payment, 0, len(payments))
	for _, other := range payments {
		if other.PaymentDate.Before(p.PaymentDate) || (other.PaymentDate.Equal(p.PaymentDate) && other.ID <= p.ID) {
			upTo = append(upTo, other)
		}
	}
	return Calculate(e, upTo), nil
}
