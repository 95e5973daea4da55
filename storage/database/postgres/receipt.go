package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/receipt"
)

// receiptLockClass namespaces the numbering advisory locks ("RCPT").
const receiptLockClass = 0x52435054

type (
	receiptRepository struct {
		db core.DB
	}

	sequenceTx struct {
		tx *sqlx.Tx
	}

	receiptRow struct {
		ID             int         `db:"id"`
		ReceiptNumber  string      `db:"receipt_number"`
		SequenceDay    time.Time   `db:"sequence_day"`
		Sequence       int         `db:"sequence"`
		PaymentID      int         `db:"payment_id"`
		StudentID      int         `db:"student_id"`
		AcademicYearID int         `db:"academic_year_id"`
		CreatedBy      int         `db:"created_by"`
		CreatedAt      time.Time   `db:"created_at"`
		PDFPath        null.String `db:"pdf_path"`
		IsEmailed      bool        `db:"is_emailed"`
		EmailedAt      null.Time   `db:"emailed_at"`
	}
)

var (
	_ receipt.Repository = (*receiptRepository)(nil) // interface compliance check
	_ receipt.SequenceTx = (*sequenceTx)(nil)

	receiptColumns = []string{
		"id", "receipt_number", "sequence_day", "sequence", "payment_id", "student_id", "academic_year_id",
		"created_by", "created_at", "pdf_path", "is_emailed", "emailed_at",
	}
)

func NewReceiptRepository(db core.DB) receipt.Repository {
	return &receiptRepository{db: db}
}

func (r receiptRow) toReceipt() receipt.Receipt {
	rcpt := receipt.Receipt{
		ID:             r.ID,
		ReceiptNumber:  r.ReceiptNumber,
		SequenceDay:    r.SequenceDay.UTC(),
		Sequence:       r.Sequence,
		PaymentID:      r.PaymentID,
		StudentID:      r.StudentID,
		AcademicYearID: r.AcademicYearID,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt.UTC(),
		PDFPath:        r.PDFPath,
		IsEmailed:      r.IsEmailed,
		EmailedAt:      r.EmailedAt,
	}
	if rcpt.EmailedAt.Valid {
		rcpt.EmailedAt.Time = rcpt.EmailedAt.Time.UTC()
	}
	return rcpt
}

func toReceipts(rows []receiptRow) []receipt.Receipt {
	receipts := make([]receipt.Receipt, 0, len(rows))
	for _, r := range rows {
		receipts = append(receipts, r.toReceipt())
	}
	return receipts
}

func dayLockKey(day time.Time) int {
	y, m, d := day.Date()
	return y*10000 + int(m)*100 + d
}

// WithDayLock serializes numbering per day with a transaction-scoped advisory lock.
// The lock is released on commit or rollback.
func (repo *receiptRepository) WithDayLock(ctx context.Context, day time.Time, fn func(tx receipt.SequenceTx) error) error {
	return withTx(ctx, repo.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)", receiptLockClass, dayLockKey(day)); err != nil {
			return errors.Wrap(err, "acquiring receipt day lock")
		}
		return fn(&sequenceTx{tx: tx})
	})
}

func (stx *sequenceTx) FindReceiptByPayment(ctx context.Context, paymentID int) (receipt.Receipt, error) {
	var row receiptRow
	q := psql.Select(receiptColumns...).From("receipts").Where(sq.Eq{"payment_id": paymentID})
	if err := get(ctx, stx.tx, &row, q); err != nil {
		return receipt.Receipt{}, trapNoRowsErr(err, receipt.ErrNotFound, "finding receipt")
	}
	return row.toReceipt(), nil
}

func (stx *sequenceTx) MaxSequence(ctx context.Context, day time.Time) (int, error) {
	var max int
	q := psql.Select("COALESCE(MAX(sequence), 0)").From("receipts").Where(sq.Eq{"sequence_day": day.Format(dateLayout)})
	if err := get(ctx, stx.tx, &max, q); err != nil {
		return 0, errors.Wrap(err, "selecting max sequence")
	}
	return max, nil
}

func (stx *sequenceTx) InsertReceipt(ctx context.Context, r receipt.Receipt) (receipt.Receipt, error) {
	q := psql.Insert("receipts").SetMap(map[string]interface{}{
		"receipt_number":   r.ReceiptNumber,
		"sequence_day":     r.SequenceDay.Format(dateLayout),
		"sequence":         r.Sequence,
		"payment_id":       r.PaymentID,
		"student_id":       r.StudentID,
		"academic_year_id": r.AcademicYearID,
		"created_by":       r.CreatedBy,
		"created_at":       r.CreatedAt.UTC(),
	}).Suffix(returning(receiptColumns))

	var row receiptRow
	if err := get(ctx, stx.tx, &row, q); err != nil {
		if code, constraint := pqViolation(err); code == codeUniqueViolation {
			return receipt.Receipt{}, core.NewConflictError(constraint, err)
		}
		return receipt.Receipt{}, errors.Wrap(err, "inserting receipt")
	}
	return row.toReceipt(), nil
}

func (repo *receiptRepository) getBy(ctx context.Context, where sq.Eq, msg string) (receipt.Receipt, error) {
	var row receiptRow
	q := psql.Select(receiptColumns...).From("receipts").Where(where)
	if err := get(ctx, repo.db, &row, q); err != nil {
		return receipt.Receipt{}, trapNoRowsErr(err, receipt.ErrNotFound, msg)
	}
	return row.toReceipt(), nil
}

func (repo *receiptRepository) GetReceipt(ctx context.Context, id int) (receipt.Receipt, error) {
	return repo.getBy(ctx, sq.Eq{"id": id}, "getting receipt")
}

func (repo *receiptRepository) GetReceiptByPayment(ctx context.Context, paymentID int) (receipt.Receipt, error) {
	return repo.getBy(ctx, sq.Eq{"payment_id": paymentID}, "getting receipt by payment")
}

func (repo *receiptRepository) QueryReceipts(ctx context.Context, filter receipt.QueryFilter) ([]receipt.Receipt, error) {
	where := sq.Eq{}
	if filter.StudentID != 0 {
		where["student_id"] = filter.StudentID
	}
	if filter.AcademicYearID != 0 {
		where["academic_year_id"] = filter.AcademicYearID
	}
	if filter.PaymentID != 0 {
		where["payment_id"] = filter.PaymentID
	}
	switch filter.Emailed {
	case "true":
		where["is_emailed"] = true
	case "false":
		where["is_emailed"] = false
	}
	q := psql.Select(receiptColumns...).From("receipts").Where(where).OrderBy("id DESC")

	var rows []receiptRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying receipts")
	}
	return toReceipts(rows), nil
}

func (repo *receiptRepository) ListPendingReceipts(ctx context.Context, afterID, limit int) ([]receipt.Receipt, error) {
	q := psql.Select(receiptColumns...).From("receipts").
		Where(sq.Eq{"pdf_path": nil}).
		Where(sq.Gt{"id": afterID}).
		OrderBy("id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	var rows []receiptRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing pending receipts")
	}
	return toReceipts(rows), nil
}

func (repo *receiptRepository) update(ctx context.Context, id int, values map[string]interface{}, msg string) (receipt.Receipt, error) {
	var row receiptRow
	q := psql.Update("receipts").SetMap(values).Where(sq.Eq{"id": id}).Suffix(returning(receiptColumns))
	if err := get(ctx, repo.db, &row, q); err != nil {
		return receipt.Receipt{}, trapNoRowsErr(err, receipt.ErrNotFound, msg)
	}
	return row.toReceipt(), nil
}

func (repo *receiptRepository) SetReceiptPDF(ctx context.Context, id int, path string) (receipt.Receipt, error) {
	return repo.update(ctx, id, map[string]interface{}{"pdf_path": path}, "setting receipt pdf")
}

func (repo *receiptRepository) MarkReceiptEmailed(ctx context.Context, id int, at time.Time) (receipt.Receipt, error) {
	return repo.update(ctx, id, map[string]interface{}{"is_emailed": true, "emailed_at": at.UTC()}, "marking receipt emailed")
}
