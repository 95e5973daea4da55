package memdb

import (
	"context"
	"time"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/payment"
)

type paymentRepository struct {
	db          *table[payment.Payment]
	enrollments *table[enrollment.Enrollment]
}

var (
	_ payment.Repository = (*paymentRepository)(nil) // interface compliance check
	_ billing.Ledger     = (*paymentRepository)(nil)
)

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db.payments, enrollments: db.enrollments}
}

// NewLedger reads enrollments & payments together for balance computations.
func NewLedger(db *DB) billing.Ledger {
	return &paymentRepository{db: db.payments, enrollments: db.enrollments}
}

var paymentComparators = comparators[payment.Payment]{
	"payment_date": func(a, b payment.Payment) int { return compareTimes(a.PaymentDate, b.PaymentDate) },
	"amount":       func(a, b payment.Payment) int { return a.Amount.Cmp(b.Amount) },
	"created_at":   func(a, b payment.Payment) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

var ledgerOrdering = []core.DBOrdering{{Field: "payment_date", Ascending: true}, {Field: "created_at", Ascending: true}}

func (repo *paymentRepository) InsertPayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.nextID()
	repo.db.rows[p.ID] = p
	return p, nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, id int) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.rows[id]; ok {
		return p, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) ledger(studentID, academicYearID int) []payment.Payment {
	payments := repo.db.filter(func(p payment.Payment) bool {
		return p.StudentID == studentID && p.AcademicYearID == academicYearID
	})
	sortRows(payments, paymentComparators, ledgerOrdering)
	return payments
}

func (repo *paymentRepository) ListPayments(_ context.Context, studentID, academicYearID int) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.ledger(studentID, academicYearID), nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter payment.QueryFilter, ordering ...core.DBOrdering) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	payments := repo.db.filter(filter.Match)
	if !hasComparator(paymentComparators, ordering) {
		// newest first: payment_date DESC, id DESC
		reverse(payments)
		ordering = []core.DBOrdering{{Field: "payment_date"}}
	}
	sortRows(payments, paymentComparators, ordering)
	return payments, nil
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, id int, changes map[payment.Field]interface{}, updatedAt time.Time) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.rows[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	payment.Apply(&p, changes)
	p.UpdatedAt = updatedAt
	repo.db.rows[id] = p
	return p, nil
}

// LedgerSnapshot holds both read locks so no payment lands between the two reads.
func (repo *paymentRepository) LedgerSnapshot(_ context.Context, studentID, academicYearID int) (*enrollment.Enrollment, []payment.Payment, error) {
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()
	repo.db.RLock()
	defer repo.db.RUnlock()

	var enr *enrollment.Enrollment
	for _, e := range repo.enrollments.rows {
		if e.StudentID == studentID && e.AcademicYearID == academicYearID {
			e := e
			enr = &e
			break
		}
	}
	return enr, repo.ledger(studentID, academicYearID), nil
}
