package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/payment"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pay(amount, status string) payment.Payment {
	return payment.Payment{Amount: dec(amount), Status: status}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name       string
		enrollment *enrollment.Enrollment
		payments   []payment.Payment
		wantDue    string
		wantPaid   string
		wantBal    string
		wantDisc   string
		wantSchol  string
		wantFull   bool
		wantCredit string
	}{
		{
			name:     "not enrolled",
			payments: []payment.Payment{pay("100", payment.StatusCompleted)},
			wantDue:  "0.00", wantPaid: "0.00", wantBal: "0.00", wantDisc: "0.00", wantSchol: "0.00",
		},
		{
			name:       "ten percent discount, 700 paid",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("1000"), DiscountPercentage: dec("10")},
			payments: []payment.Payment{
				pay("400", payment.StatusCompleted),
				pay("300", payment.StatusCompleted),
			},
			wantDue: "900.00", wantPaid: "700.00", wantBal: "200.00", wantDisc: "100.00", wantSchol: "0.00",
		},
		{
			name:       "stored discount amount used when no percentage",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("1000"), DiscountAmount: dec("50")},
			wantDue:    "950.00", wantPaid: "0.00", wantBal: "950.00", wantDisc: "50.00", wantSchol: "0.00",
		},
		{
			name:       "no payments",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("1000")},
			wantDue:    "1000.00", wantPaid: "0.00", wantBal: "1000.00", wantDisc: "0.00", wantSchol: "0.00",
		},
		{
			name:       "percentage discount & scholarship are additive",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("1000"), DiscountPercentage: dec("10"), ScholarshipPercentage: dec("20")},
			payments:   []payment.Payment{pay("300", payment.StatusCompleted)},
			wantDue:    "700.00", wantPaid: "300.00", wantBal: "400.00", wantDisc: "100.00", wantSchol: "200.00",
		},
		{
			name: "percentage wins over a stale amount",
			enrollment: &enrollment.Enrollment{
				TuitionFee: dec("2000"), DiscountPercentage: dec("10"), DiscountAmount: dec("100"),
			},
			wantDue: "1800.00", wantPaid: "0.00", wantBal: "1800.00", wantDisc: "200.00", wantSchol: "0.00",
		},
		{
			name:       "fixed amounts",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("1500"), DiscountAmount: dec("150.50"), ScholarshipAmount: dec("49.50")},
			wantDue:    "1300.00", wantPaid: "0.00", wantBal: "1300.00", wantDisc: "150.50", wantSchol: "49.50",
		},
		{
			name:       "pending counts, failed does not",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("1000")},
			payments: []payment.Payment{
				pay("200", payment.StatusCompleted),
				pay("150", payment.StatusPending),
				pay("500", payment.StatusFailed),
			},
			wantDue: "1000.00", wantPaid: "350.00", wantBal: "650.00", wantDisc: "0.00", wantSchol: "0.00",
		},
		{
			name:       "overpayment yields a negative balance",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("500")},
			payments:   []payment.Payment{pay("400", payment.StatusCompleted), pay("250", payment.StatusCompleted)},
			wantDue:    "500.00", wantPaid: "650.00", wantBal: "-150.00", wantDisc: "0.00", wantSchol: "0.00",
			wantFull: true, wantCredit: "150.00",
		},
		{
			name:       "settled exactly",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("500")},
			payments:   []payment.Payment{pay("500", payment.StatusCompleted)},
			wantDue:    "500.00", wantPaid: "500.00", wantBal: "0.00", wantDisc: "0.00", wantSchol: "0.00",
			wantFull: true,
		},
		{
			name:       "reductions rounded half away from zero",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("333.33"), DiscountPercentage: dec("12.5")},
			wantDue:    "291.66", wantPaid: "0.00", wantBal: "291.66", wantDisc: "41.67", wantSchol: "0.00",
		},
		{
			name:       "reductions above the fee are not clamped",
			enrollment: &enrollment.Enrollment{TuitionFee: dec("100"), DiscountPercentage: dec("80"), ScholarshipPercentage: dec("50")},
			wantDue:    "-30.00", wantPaid: "0.00", wantBal: "-30.00", wantDisc: "80.00", wantSchol: "50.00",
			wantFull: true, wantCredit: "30.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.Calculate(tt.enrollment, tt.payments)
			assert.Equal(t, tt.wantDue, got.TotalDue.StringFixed(2), "total_due")
			assert.Equal(t, tt.wantPaid, got.TotalPaid.StringFixed(2), "total_paid")
			assert.Equal(t, tt.wantBal, got.Balance.StringFixed(2), "balance")
			assert.Equal(t, tt.wantDisc, got.DiscountAmount.StringFixed(2), "discount_amount")
			assert.Equal(t, tt.wantSchol, got.ScholarshipAmount.StringFixed(2), "scholarship_amount")
			assert.Equal(t, tt.wantFull, got.PaidInFull, "paid_in_full")
			wantCredit := tt.wantCredit
			if wantCredit == "" {
				wantCredit = "0.00"
			}
			assert.Equal(t, wantCredit, got.Credit.StringFixed(2), "credit")

			// balance = total_due - total_paid, total_due = fee - discount - scholarship
			assert.True(t, got.Balance.Equal(got.TotalDue.Sub(got.TotalPaid)))
			assert.True(t, got.TotalDue.Equal(got.TuitionFee.Sub(got.DiscountAmount).Sub(got.ScholarshipAmount)))

			// same inputs, same output
			again := billing.Calculate(tt.enrollment, tt.payments)
			assert.True(t, got.Balance.Equal(again.Balance))
		})
	}
}

func TestCalculate_IgnoresPaymentOrder(t *testing.T) {
	e := &enrollment.Enrollment{TuitionFee: dec("1200"), ScholarshipPercentage: dec("25")}
	payments := []payment.Payment{
		pay("100.10", payment.StatusCompleted),
		pay("0.20", payment.StatusPending),
		pay("300", payment.StatusFailed),
		pay("49.70", payment.StatusCompleted),
	}
	reversed := make([]payment.Payment, len(payments))
	for i, p := range payments {
		reversed[len(payments)-1-i] = p
	}

	a := billing.Calculate(e, payments)
	b := billing.Calculate(e, reversed)
	assert.Equal(t, "150.00", a.TotalPaid.StringFixed(2))
	assert.True(t, a.Balance.Equal(b.Balance))
	assert.False(t, a.PaidInFull)
}

type ledgerStub struct {
	enrollment *enrollment.Enrollment
	payments   []payment.Payment
	calls      int
}

func (l *ledgerStub) LedgerSnapshot(_ context.Context, _, _ int) (*enrollment.Enrollment, []payment.Payment, error) {
	l.calls++
	return l.enrollment, l.payments, nil
}

func TestService_Balance(t *testing.T) {
	ledger := &ledgerStub{enrollment: &enrollment.Enrollment{TuitionFee: dec("1000")}}
	svc := billing.NewService(ledger)
	ctx := context.Background()

	before, err := svc.Balance(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", before.Balance.StringFixed(2))

	// recording a non-failed payment lowers the balance by exactly its amount
	ledger.payments = append(ledger.payments, pay("275.25", payment.StatusCompleted))
	after, err := svc.Balance(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "275.25", before.Balance.Sub(after.Balance).StringFixed(2))
	assert.Equal(t, 2, ledger.calls)
}

func TestService_BalanceAfter(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC) }
	payments := []payment.Payment{
		{ID: 1, Amount: dec("300"), Status: payment.StatusCompleted, PaymentDate: day(1)},
		{ID: 2, Amount: dec("200"), Status: payment.StatusCompleted, PaymentDate: day(3)},
		{ID: 3, Amount: dec("100"), Status: payment.StatusPending, PaymentDate: day(3)},
		{ID: 4, Amount: dec("50"), Status: payment.StatusCompleted, PaymentDate: day(2)}, // back-dated
	}
	svc := billing.NewService(&ledgerStub{enrollment: &enrollment.Enrollment{TuitionFee: dec("1000")}, payments: payments})

	tests := []struct {
		name    string
		payment payment.Payment
		want    string
	}{
		{name: "first", payment: payments[0], want: "700.00"},
		{name: "back-dated counts by date", payment: payments[3], want: "650.00"},
		{name: "same day, lower id", payment: payments[1], want: "450.00"},
		{name: "latest", payment: payments[2], want: "350.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.BalanceAfter(context.Background(), tt.payment)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Balance.StringFixed(2))
		})
	}
}
