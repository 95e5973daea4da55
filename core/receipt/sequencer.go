package receipt

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/setting"
)

const defaultSequenceAttempts = 3

type (
	// SequenceTx exposes the receipts table inside a day-serialized transaction.
	SequenceTx interface {
		// FindReceiptByPayment returns ErrNotFound when the payment has no receipt yet.
		FindReceiptByPayment(ctx context.Context, paymentID int) (Receipt, error)
		// MaxSequence returns the highest sequence issued on day, 0 if none.
		MaxSequence(ctx context.Context, day time.Time) (int, error)
		// InsertReceipt returns a core.ConflictError when the number, the (day, sequence)
		// pair or the payment is already taken.
		InsertReceipt(ctx context.Context, r Receipt) (Receipt, error)
	}

	Repository interface {
		// WithDayLock runs fn while holding the receipt numbering lock of day. Calls for the same
		// day never overlap. Everything fn inserts is discarded when it returns an error.
		WithDayLock(ctx context.Context, day time.Time, fn func(tx SequenceTx) error) error

		GetReceipt(ctx context.Context, id int) (Receipt, error)
		GetReceiptByPayment(ctx context.Context, paymentID int) (Receipt, error)
		// QueryReceipts returns the matching receipts, newest first.
		QueryReceipts(ctx context.Context, filter QueryFilter) ([]Receipt, error)
		// ListPendingReceipts returns up to limit receipts without a PDF whose id is above afterID,
		// in id order.
		ListPendingReceipts(ctx context.Context, afterID, limit int) ([]Receipt, error)
		SetReceiptPDF(ctx context.Context, id int, path string) (Receipt, error)
		MarkReceiptEmailed(ctx context.Context, id int, at time.Time) (Receipt, error)
	}

	// Sequencer mints receipt numbers: one per payment, unique, sortable by day then sequence.
	Sequencer struct {
		repo     Repository
		settings setting.Reader
		attempts int
		now      func() time.Time
	}
)

func NewSequencer(repo Repository, settings setting.Reader, attempts int) *Sequencer {
	if attempts < 1 {
		attempts = defaultSequenceAttempts
	}
	return &Sequencer{repo: repo, settings: settings, attempts: attempts, now: time.Now}
}

// Issue returns the receipt of p, creating it with the next number of today's sequence when
// p has none. created is false when an existing receipt is returned.
func (s *Sequencer) Issue(ctx context.Context, p payment.Payment, createdBy int) (rcpt Receipt, created bool, err error) {
	prefix, err := s.settings.Get(ctx, setting.ReceiptPrefix, setting.Defaults[setting.ReceiptPrefix])
	if err != nil {
		return Receipt{}, false, errors.Wrap(err, "reading receipt prefix")
	}

	for attempt := 1; ; attempt++ {
		rcpt, created, err = s.issue(ctx, p, createdBy, prefix)
		if err == nil || !core.IsConflict(err) || attempt >= s.attempts {
			if err != nil {
				err = errors.Wrapf(err, "issuing receipt for payment %d (attempt %d)", p.ID, attempt)
			}
			return rcpt, created, err
		}
	}
}

func (s *Sequencer) issue(ctx context.Context, p payment.Payment, createdBy int, prefix string) (Receipt, bool, error) {
	now := s.now().UTC()
	day := core.TruncateDay(now)

	var (
		rcpt    Receipt
		created bool
	)
	err := s.repo.WithDayLock(ctx, day, func(tx SequenceTx) error {
		existing, err := tx.FindReceiptByPayment(ctx, p.ID)
		if err == nil {
			rcpt = existing
			return nil
		}
		if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding receipt")
		}

		last, err := tx.MaxSequence(ctx, day)
		if err != nil {
			return errors.Wrap(err, "reading last sequence")
		}
		seq := last + 1

		rcpt, err = tx.InsertReceipt(ctx, Receipt{
			ReceiptNumber:  FormatNumber(prefix, day, seq),
			SequenceDay:    day,
			Sequence:       seq,
			PaymentID:      p.ID,
			StudentID:      p.StudentID,
			AcademicYearID: p.AcademicYearID,
			CreatedBy:      createdBy,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	return rcpt, created, err
}
