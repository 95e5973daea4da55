// Package exportsvc writes payment ledgers to spreadsheets.
package exportsvc

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

const (
	PaymentsSheet = "Payments"
	BalancesSheet = "Balances"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	paymentHeaders = []string{
		"Date", "Student number", "Student", "Academic year ID", "Type", "Method", "Reference", "Status", "Amount",
	}
	balanceHeaders = []string{
		"Student number", "Student", "Academic year ID", "Tuition fee", "Discount", "Scholarship",
		"Total due", "Total paid", "Balance",
	}
)

type ledgerKey struct {
	studentID, academicYearID int
}

// LedgerExporter writes the payments matching a filter, then the balance of every
// (student, academic year) pair they belong to.
type LedgerExporter struct {
	payments payment.Repository
	students student.Repository
	balances *billing.Service
	logger   core.Logger
}

func NewLedgerExporter(payments payment.Repository, students student.Repository, balances *billing.Service, logger core.Logger) *LedgerExporter {
	return &LedgerExporter{payments: payments, students: students, balances: balances, logger: logger}
}

// Filename names the export of the given day.
func Filename(day time.Time) string {
	return fmt.Sprintf("payments-%s.xlsx", day.Format("20060102"))
}

func (x *LedgerExporter) Export(ctx context.Context, filter payment.QueryFilter, w io.Writer) error {
	payments, err := x.payments.QueryPayments(ctx, filter, core.DBOrdering{Field: "payment_date", Ascending: true})
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", PaymentsSheet); err != nil {
		return errors.Wrap(err, "naming payments sheet")
	}
	if _, err := f.NewSheet(BalancesSheet); err != nil {
		return errors.Wrap(err, "creating balances sheet")
	}
	if err := writeHeaders(f, PaymentsSheet, paymentHeaders); err != nil {
		return err
	}
	if err := writeHeaders(f, BalancesSheet, balanceHeaders); err != nil {
		return err
	}

	students := make(map[int]student.Student)
	var pairs []ledgerKey
	seen := make(map[ledgerKey]bool)

	for i, p := range payments {
		s, err := x.student(ctx, students, p.StudentID)
		if err != nil {
			return err
		}
		row := []interface{}{
			p.PaymentDate.Format("2006-01-02"), s.StudentNumber, s.FullName(), p.AcademicYearID,
			p.PaymentType, p.PaymentMethod, p.ReferenceNumber.String, p.Status, money(p.Amount),
		}
		if err := writeRow(f, PaymentsSheet, i+2, row); err != nil {
			return err
		}

		key := ledgerKey{studentID: p.StudentID, academicYearID: p.AcademicYearID}
		if !seen[key] {
			seen[key] = true
			pairs = append(pairs, key)
		}
	}

	for i, key := range pairs {
		bal, err := x.balances.Balance(ctx, key.studentID, key.academicYearID)
		if err != nil {
			return errors.Wrapf(err, "computing balance of student %d", key.studentID)
		}
		s := students[key.studentID]
		row := []interface{}{
			s.StudentNumber, s.FullName(), key.academicYearID,
			money(bal.TuitionFee), money(bal.DiscountAmount),
			money(bal.ScholarshipAmount), money(bal.TotalDue),
			money(bal.TotalPaid), money(bal.Balance),
		}
		if err := writeRow(f, BalancesSheet, i+2, row); err != nil {
			return err
		}
	}

	x.logger.Debug("ledger exported", "payments", len(payments), "balances", len(pairs))
	return errors.Wrap(f.Write(w), "writing workbook")
}

func (x *LedgerExporter) student(ctx context.Context, cache map[int]student.Student, id int) (student.Student, error) {
	if s, ok := cache[id]; ok {
		return s, nil
	}
	s, err := x.students.GetStudent(ctx, id)
	if err != nil {
		return student.Student{}, errors.Wrapf(err, "getting student %d", id)
	}
	cache[id] = s
	return s, nil
}

func money(d decimal.Decimal) float64 {
	f, _ := core.RoundMoney(d).Float64()
	return f
}

func writeHeaders(f *excelize.File, sheet string, headers []string) error {
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return errors.Wrap(err, "locating header cell")
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return errors.Wrapf(err, "writing %s header", sheet)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return errors.Wrap(err, "locating cell")
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return errors.Wrapf(err, "writing %s!%s", sheet, cell)
		}
	}
	return nil
}
