package pgrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/payment"
)

type (
	paymentRepository struct {
		db core.DB
	}

	paymentRow struct {
		ID              int             `db:"id"`
		StudentID       int             `db:"student_id"`
		AcademicYearID  int             `db:"academic_year_id"`
		Amount          decimal.Decimal `db:"amount"`
		PaymentDate     time.Time       `db:"payment_date"`
		PaymentType     string          `db:"payment_type"`
		PaymentMethod   string          `db:"payment_method"`
		ReferenceNumber null.String     `db:"reference_number"`
		Status          string          `db:"status"`
		Notes           string          `db:"notes"`
		CreatedBy       int             `db:"created_by"`
		CreatedAt       time.Time       `db:"created_at"`
		UpdatedAt       time.Time       `db:"updated_at"`
	}
)

var (
	_ payment.Repository = (*paymentRepository)(nil) // interface compliance check
	_ billing.Ledger     = (*paymentRepository)(nil)

	paymentColumns = []string{
		"id", "student_id", "academic_year_id", "amount", "payment_date", "payment_type", "payment_method",
		"reference_number", "status", "notes", "created_by", "created_at", "updated_at",
	}
	paymentOrderBy = map[string]bool{"payment_date": true, "amount": true, "created_at": true}

	paymentFieldColumns = map[payment.Field]string{
		payment.FieldAmount:          "amount",
		payment.FieldPaymentDate:     "payment_date",
		payment.FieldPaymentType:     "payment_type",
		payment.FieldPaymentMethod:   "payment_method",
		payment.FieldReferenceNumber: "reference_number",
		payment.FieldStatus:          "status",
		payment.FieldNotes:           "notes",
	}

	snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
)

func NewPaymentRepository(db core.DB) payment.Repository {
	return &paymentRepository{db: db}
}

// NewLedger reads enrollments & payments together for balance computations.
func NewLedger(db core.DB) billing.Ledger {
	return &paymentRepository{db: db}
}

func (r paymentRow) toPayment() payment.Payment {
	return payment.Payment{
		ID:              r.ID,
		StudentID:       r.StudentID,
		AcademicYearID:  r.AcademicYearID,
		Amount:          r.Amount,
		PaymentDate:     r.PaymentDate.UTC(),
		PaymentType:     r.PaymentType,
		PaymentMethod:   r.PaymentMethod,
		ReferenceNumber: r.ReferenceNumber,
		Status:          r.Status,
		Notes:           r.Notes,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func toPayments(rows []paymentRow) []payment.Payment {
	payments := make([]payment.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.toPayment())
	}
	return payments
}

func ledgerQuery(studentID, academicYearID int) sq.SelectBuilder {
	return psql.Select(paymentColumns...).From("payments").
		Where(sq.Eq{"student_id": studentID, "academic_year_id": academicYearID}).
		OrderBy("payment_date ASC", "id ASC")
}

func (repo *paymentRepository) InsertPayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	q := psql.Insert("payments").SetMap(map[string]interface{}{
		"student_id":       p.StudentID,
		"academic_year_id": p.AcademicYearID,
		"amount":           p.Amount,
		"payment_date":     p.PaymentDate.Format(dateLayout),
		"payment_type":     p.PaymentType,
		"payment_method":   p.PaymentMethod,
		"reference_number": p.ReferenceNumber,
		"status":           p.Status,
		"notes":            p.Notes,
		"created_by":       p.CreatedBy,
		"created_at":       p.CreatedAt.UTC(),
		"updated_at":       p.UpdatedAt.UTC(),
	}).Suffix(returning(paymentColumns))

	var row paymentRow
	if err := get(ctx, repo.db, &row, q); err != nil {
		if code, constraint := pqViolation(err); code == codeForeignKeyViolation && constraint != "payments_created_by_fkey" {
			return payment.Payment{}, payment.ErrNotEnrolled
		}
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return row.toPayment(), nil
}

func (repo *paymentRepository) GetPayment(ctx context.Context, id int) (payment.Payment, error) {
	var row paymentRow
	q := psql.Select(paymentColumns...).From("payments").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "getting payment")
	}
	return row.toPayment(), nil
}

func (repo *paymentRepository) ListPayments(ctx context.Context, studentID, academicYearID int) ([]payment.Payment, error) {
	var rows []paymentRow
	if err := selectAll(ctx, repo.db, &rows, ledgerQuery(studentID, academicYearID)); err != nil {
		return nil, errors.Wrap(err, "listing payments")
	}
	return toPayments(rows), nil
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter payment.QueryFilter, ordering ...core.DBOrdering) ([]payment.Payment, error) {
	where := sq.And{}
	eq := sq.Eq{}
	if filter.StudentID != 0 {
		eq["student_id"] = filter.StudentID
	}
	if filter.AcademicYearID != 0 {
		eq["academic_year_id"] = filter.AcademicYearID
	}
	if filter.Status != "" {
		eq["status"] = filter.Status
	}
	if filter.PaymentType != "" {
		eq["payment_type"] = filter.PaymentType
	}
	if filter.PaymentMethod != "" {
		eq["payment_method"] = filter.PaymentMethod
	}
	where = append(where, eq)
	if !filter.DateFrom.IsZero() {
		where = append(where, sq.GtOrEq{"payment_date": filter.DateFrom.UTC().Format(dateLayout)})
	}
	if !filter.DateTo.IsZero() {
		where = append(where, sq.LtOrEq{"payment_date": filter.DateTo.UTC().Format(dateLayout)})
	}
	q := psql.Select(paymentColumns...).From("payments").Where(where).
		OrderBy(orderBy(ordering, paymentOrderBy, "payment_date DESC", "id DESC")...)

	var rows []paymentRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return toPayments(rows), nil
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, id int, changes map[payment.Field]interface{}, updatedAt time.Time) (payment.Payment, error) {
	values := map[string]interface{}{"updated_at": updatedAt.UTC()}
	for f, v := range changes {
		col, ok := paymentFieldColumns[f]
		if !ok {
			continue
		}
		if day, isTime := v.(time.Time); isTime {
			v = day.Format(dateLayout)
		}
		values[col] = v
	}

	var row paymentRow
	q := psql.Update("payments").SetMap(values).Where(sq.Eq{"id": id}).Suffix(returning(paymentColumns))
	if err := get(ctx, repo.db, &row, q); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "updating payment")
	}
	return row.toPayment(), nil
}

// LedgerSnapshot reads the enrollment and its payments in one repeatable-read transaction.
func (repo *paymentRepository) LedgerSnapshot(ctx context.Context, studentID, academicYearID int) (*enrollment.Enrollment, []payment.Payment, error) {
	var (
		enr      *enrollment.Enrollment
		payments []payment.Payment
	)
	err := withTx(ctx, repo.db, snapshotTxOptions, func(tx *sqlx.Tx) error {
		var er enrollmentRow
		if err := get(ctx, tx, &er, findEnrollmentQuery(studentID, academicYearID)); err != nil {
			if errors.Cause(err) == sql.ErrNoRows {
				return nil
			}
			return errors.Wrap(err, "finding enrollment")
		}
		e := er.toEnrollment()
		enr = &e

		var rows []paymentRow
		if err := selectAll(ctx, tx, &rows, ledgerQuery(studentID, academicYearID)); err != nil {
			return errors.Wrap(err, "listing payments")
		}
		payments = toPayments(rows)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return enr, payments, nil
}
