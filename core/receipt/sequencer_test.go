package receipt_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/receipt"
	"github.com/trezcool/bursar/core/setting"
	"github.com/trezcool/bursar/storage/database/memdb"
)

type settingsStub map[string]string

func (s settingsStub) Get(_ context.Context, name, def string) (string, error) {
	if v, ok := s[name]; ok {
		return v, nil
	}
	return def, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var june1st = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func TestFormatNumber(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		prefix string
		seq    int
		want   string
	}{
		{prefix: "REC-", seq: 1, want: "REC-202506010001"},
		{prefix: "REC-", seq: 42, want: "REC-202506010042"},
		{prefix: "", seq: 9999, want: "202506019999"},
		{prefix: "KIN/", seq: 12345, want: "KIN/2025060112345"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, receipt.FormatNumber(tt.prefix, day, tt.seq))
		})
	}
}

func TestSequencer_Issue(t *testing.T) {
	ctx := context.Background()
	repo := memdb.NewReceiptRepository(memdb.Open())
	settings := settingsStub{setting.ReceiptPrefix: "REC-"}
	seq := receipt.NewSequencer(repo, settings, 3)
	seq.SetClock(fixedClock(june1st))

	first, created, err := seq.Issue(ctx, payment.Payment{ID: 1, StudentID: 1, AcademicYearID: 1}, 1)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "REC-202506010001", first.ReceiptNumber)

	second, created, err := seq.Issue(ctx, payment.Payment{ID: 2, StudentID: 1, AcademicYearID: 1}, 1)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "REC-202506010002", second.ReceiptNumber)

	t.Run("same payment returns its receipt", func(t *testing.T) {
		again, created, err := seq.Issue(ctx, payment.Payment{ID: 1, StudentID: 1, AcademicYearID: 1}, 1)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, first.ReceiptNumber, again.ReceiptNumber)
	})

	t.Run("prefix change keeps the day sequence", func(t *testing.T) {
		settings[setting.ReceiptPrefix] = "KIN-"
		defer func() { settings[setting.ReceiptPrefix] = "REC-" }()

		r, _, err := seq.Issue(ctx, payment.Payment{ID: 3}, 1)
		require.NoError(t, err)
		assert.Equal(t, "KIN-202506010003", r.ReceiptNumber)
	})

	t.Run("next day restarts at 1", func(t *testing.T) {
		seq.SetClock(fixedClock(june1st.Add(24 * time.Hour)))
		defer seq.SetClock(fixedClock(june1st))

		r, _, err := seq.Issue(ctx, payment.Payment{ID: 4}, 1)
		require.NoError(t, err)
		assert.Equal(t, "REC-202506020001", r.ReceiptNumber)
	})
}

func TestSequencer_IssueBucketsByUTCDay(t *testing.T) {
	ctx := context.Background()
	repo := memdb.NewReceiptRepository(memdb.Open())
	seq := receipt.NewSequencer(repo, settingsStub{}, 3)

	// 00:30 on June 2nd in Lubumbashi is still June 1st in UTC
	cat := time.FixedZone("CAT", 2*60*60)
	seq.SetClock(fixedClock(time.Date(2025, 6, 2, 0, 30, 0, 0, cat)))

	rcpt, _, err := seq.Issue(ctx, payment.Payment{ID: 1, StudentID: 1, AcademicYearID: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "REC-202506010001", rcpt.ReceiptNumber)
	assert.Equal(t, time.UTC, rcpt.CreatedAt.Location())
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), rcpt.SequenceDay.UTC())
}

func TestSequencer_IssueConcurrently(t *testing.T) {
	const n = 50

	ctx := context.Background()
	seq := receipt.NewSequencer(memdb.NewReceiptRepository(memdb.Open()), settingsStub{}, 3)
	seq.SetClock(fixedClock(june1st))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		numbers  = make(map[string]bool, n)
		sequence = make([]int, 0, n)
		errs     []error
	)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(paymentID int) {
			defer wg.Done()
			r, _, err := seq.Issue(ctx, payment.Payment{ID: paymentID}, 1)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[r.ReceiptNumber] = true
			sequence = append(sequence, r.Sequence)
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, numbers, n, "duplicate receipt numbers")
	sort.Ints(sequence)
	for i, s := range sequence {
		if s != i+1 {
			t.Fatalf("sequence %v has a gap or duplicate at position %d", sequence, i)
		}
	}
}

func TestSequencer_IssueSamePaymentConcurrently(t *testing.T) {
	ctx := context.Background()
	seq := receipt.NewSequencer(memdb.NewReceiptRepository(memdb.Open()), settingsStub{}, 3)
	seq.SetClock(fixedClock(june1st))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[int]bool)
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, isNew, err := seq.Issue(ctx, payment.Payment{ID: 99}, 1)
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			ids[r.ID] = true
			if isNew {
				created++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

// conflictingRepo rejects the first `conflicts` inserts as if a concurrent writer won the race.
type conflictingRepo struct {
	receipt.Repository
	conflicts int
	inserts   int
}

type conflictingTx struct {
	receipt.SequenceTx
	repo *conflictingRepo
}

func (r *conflictingRepo) WithDayLock(ctx context.Context, day time.Time, fn func(tx receipt.SequenceTx) error) error {
	return r.Repository.WithDayLock(ctx, day, func(tx receipt.SequenceTx) error {
		return fn(&conflictingTx{SequenceTx: tx, repo: r})
	})
}

func (tx *conflictingTx) InsertReceipt(ctx context.Context, r receipt.Receipt) (receipt.Receipt, error) {
	tx.repo.inserts++
	if tx.repo.inserts <= tx.repo.conflicts {
		return receipt.Receipt{}, core.NewConflictError("receipts_receipt_number_key", nil)
	}
	return tx.SequenceTx.InsertReceipt(ctx, r)
}

func TestSequencer_IssueRetriesConflicts(t *testing.T) {
	tests := []struct {
		name        string
		conflicts   int
		wantErr     bool
		wantInserts int
	}{
		{name: "no conflict", conflicts: 0, wantInserts: 1},
		{name: "recovers", conflicts: 2, wantInserts: 3},
		{name: "gives up after 3 attempts", conflicts: 3, wantErr: true, wantInserts: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &conflictingRepo{Repository: memdb.NewReceiptRepository(memdb.Open()), conflicts: tt.conflicts}
			seq := receipt.NewSequencer(repo, settingsStub{}, 3)
			seq.SetClock(fixedClock(june1st))

			r, _, err := seq.Issue(context.Background(), payment.Payment{ID: 1}, 1)
			assert.Equal(t, tt.wantInserts, repo.inserts)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsConflict(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "REC-202506010001", r.ReceiptNumber)
		})
	}
}
