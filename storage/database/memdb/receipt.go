package memdb

import (
	"context"
	"sync"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/receipt"
)

type (
	receiptRepository struct {
		db       *table[receipt.Receipt]
		locksMu  *sync.Mutex
		dayLocks map[string]*sync.Mutex
	}

	// sequenceTx writes straight to the table and undoes its inserts on rollback.
	sequenceTx struct {
		db       *table[receipt.Receipt]
		inserted []int
	}
)

var (
	_ receipt.Repository = (*receiptRepository)(nil) // interface compliance check
	_ receipt.SequenceTx = (*sequenceTx)(nil)
)

func NewReceiptRepository(db *DB) receipt.Repository {
	return &receiptRepository{db: db.receipts, locksMu: &db.dayLocksMu, dayLocks: db.dayLocks}
}

func (repo *receiptRepository) dayLock(day time.Time) *sync.Mutex {
	key := day.Format("2006-01-02")

	repo.locksMu.Lock()
	defer repo.locksMu.Unlock()

	mu, ok := repo.dayLocks[key]
	if !ok {
		mu = new(sync.Mutex)
		repo.dayLocks[key] = mu
	}
	return mu
}

func (repo *receiptRepository) WithDayLock(ctx context.Context, day time.Time, fn func(tx receipt.SequenceTx) error) error {
	mu := repo.dayLock(day)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &sequenceTx{db: repo.db}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (tx *sequenceTx) FindReceiptByPayment(_ context.Context, paymentID int) (receipt.Receipt, error) {
	tx.db.RLock()
	defer tx.db.RUnlock()

	for _, r := range tx.db.rows {
		if r.PaymentID == paymentID {
			return r, nil
		}
	}
	return receipt.Receipt{}, receipt.ErrNotFound
}

func (tx *sequenceTx) MaxSequence(_ context.Context, day time.Time) (int, error) {
	tx.db.RLock()
	defer tx.db.RUnlock()

	var max int
	for _, r := range tx.db.rows {
		if r.SequenceDay.Equal(day) && r.Sequence > max {
			max = r.Sequence
		}
	}
	return max, nil
}

func (tx *sequenceTx) InsertReceipt(_ context.Context, r receipt.Receipt) (receipt.Receipt, error) {
	tx.db.Lock()
	defer tx.db.Unlock()

	for _, existing := range tx.db.rows {
		switch {
		case existing.ReceiptNumber == r.ReceiptNumber:
			return receipt.Receipt{}, core.NewConflictError("receipts_receipt_number_key", nil)
		case existing.SequenceDay.Equal(r.SequenceDay) && existing.Sequence == r.Sequence:
			return receipt.Receipt{}, core.NewConflictError("receipts_sequence_key", nil)
		case existing.PaymentID == r.PaymentID:
			return receipt.Receipt{}, core.NewConflictError("receipts_payment_id_key", nil)
		}
	}
	r.ID = tx.db.nextID()
	tx.db.rows[r.ID] = r
	tx.inserted = append(tx.inserted, r.ID)
	return r, nil
}

func (tx *sequenceTx) rollback() {
	tx.db.Lock()
	defer tx.db.Unlock()

	for _, id := range tx.inserted {
		delete(tx.db.rows, id)
	}
}

func (repo *receiptRepository) get(match func(receipt.Receipt) bool) (receipt.Receipt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.rows {
		if match(r) {
			return r, nil
		}
	}
	return receipt.Receipt{}, receipt.ErrNotFound
}

func (repo *receiptRepository) GetReceipt(_ context.Context, id int) (receipt.Receipt, error) {
	return repo.get(func(r receipt.Receipt) bool { return r.ID == id })
}

func (repo *receiptRepository) GetReceiptByPayment(_ context.Context, paymentID int) (receipt.Receipt, error) {
	return repo.get(func(r receipt.Receipt) bool { return r.PaymentID == paymentID })
}

func (repo *receiptRepository) QueryReceipts(_ context.Context, filter receipt.QueryFilter) ([]receipt.Receipt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	receipts := repo.db.filter(filter.Match)
	reverse(receipts)
	return receipts, nil
}

func (repo *receiptRepository) ListPendingReceipts(_ context.Context, afterID, limit int) ([]receipt.Receipt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	pending := repo.db.filter(func(r receipt.Receipt) bool { return r.ID > afterID && !r.HasPDF() })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (repo *receiptRepository) update(id int, fn func(r *receipt.Receipt)) (receipt.Receipt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.rows[id]
	if !ok {
		return receipt.Receipt{}, receipt.ErrNotFound
	}
	fn(&r)
	repo.db.rows[id] = r
	return r, nil
}

func (repo *receiptRepository) SetReceiptPDF(_ context.Context, id int, path string) (receipt.Receipt, error) {
	return repo.update(id, func(r *receipt.Receipt) { r.PDFPath = null.StringFrom(path) })
}

func (repo *receiptRepository) MarkReceiptEmailed(_ context.Context, id int, at time.Time) (receipt.Receipt, error) {
	return repo.update(id, func(r *receipt.Receipt) {
		r.IsEmailed = true
		r.EmailedAt = null.TimeFrom(at)
	})
}
