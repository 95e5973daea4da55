package receipt_test

import (
	"context"
	"io"
	"log"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/audit"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/receipt"
	"github.com/trezcool/bursar/core/setting"
	"github.com/trezcool/bursar/core/student"
	appfs "github.com/trezcool/bursar/fs"
	emailsvc "github.com/trezcool/bursar/services/email"
	logsvc "github.com/trezcool/bursar/services/logger"
	"github.com/trezcool/bursar/storage/database/memdb"
	"github.com/trezcool/bursar/storage/files"
)

type stubRenderer struct {
	mu      sync.Mutex
	calls   int
	fail    bool
	failFor map[string]bool // receipt numbers
}

func (r *stubRenderer) Render(doc receipt.Document) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.fail || r.failFor[doc.Receipt.ReceiptNumber] {
		return nil, errors.New("renderer down")
	}
	return []byte("%PDF-1.3 " + doc.Receipt.ReceiptNumber + " balance " + doc.Balance.Balance.StringFixed(2)), nil
}

type fixture struct {
	ctx      context.Context
	svc      *receipt.Service
	payments *payment.Service
	auditor  *audit.Service
	renderer *stubRenderer
	student  student.Student
	year     academicyear.AcademicYear
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	emailsvc.ResetSentMessages()

	db := memdb.Open()
	auditor := audit.NewService(memdb.NewAuditRepository(db), logger)
	settings := setting.NewService(memdb.NewSettingRepository(db), auditor)
	store, err := files.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := core.ContextWithPrincipal(context.Background(), core.Principal{UserID: 1, Username: "bursar", Roles: []string{"bursar"}})
	_, err = settings.Set(ctx, setting.UpdateSetting{Name: setting.InstitutionName, Value: "Lycée Tuendelee"})
	require.NoError(t, err)

	stu, err := student.NewService(memdb.NewStudentRepository(db)).Create(ctx, student.NewStudent{
		StudentNumber: "S001", FirstName: "Amani", LastName: "Kabila",
		GuardianName: "Neema Kabila", GuardianEmail: "neema@test.cd",
	})
	require.NoError(t, err)
	year, err := academicyear.NewService(memdb.NewAcademicYearRepository(db)).Create(ctx, academicyear.NewAcademicYear{
		Name: "2024-2025", StartDate: "2024-09-01", EndDate: "2025-07-31", IsCurrent: true,
	})
	require.NoError(t, err)
	enrollments := enrollment.NewService(memdb.NewEnrollmentRepository(db), memdb.NewStudentRepository(db), memdb.NewAcademicYearRepository(db))
	_, err = enrollments.Enroll(ctx, enrollment.NewEnrollment{
		StudentID: stu.ID, AcademicYearID: year.ID, TuitionFee: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	renderer := new(stubRenderer)
	svc := receipt.NewServiceMock(receipt.Deps{
		Repo:             memdb.NewReceiptRepository(db),
		Payments:         memdb.NewPaymentRepository(db),
		Students:         memdb.NewStudentRepository(db),
		Years:            memdb.NewAcademicYearRepository(db),
		Balances:         billing.NewService(memdb.NewLedger(db)),
		Settings:         settings,
		Renderer:         renderer,
		Files:            store,
		Mailer:           emailsvc.NewConsoleServiceMock(conf, logger),
		Auditor:          auditor,
		Logger:           logger,
		SequenceAttempts: conf.Receipts.SequenceAttempts,
	})
	svc.SetClock(fixedClock(june1st))

	return &fixture{
		ctx:      ctx,
		svc:      svc,
		payments: payment.NewService(memdb.NewPaymentRepository(db), memdb.NewEnrollmentRepository(db), auditor),
		auditor:  auditor,
		renderer: renderer,
		student:  stu,
		year:     year,
	}
}

func (f *fixture) pay(t *testing.T, amount, status string) payment.Payment {
	t.Helper()
	p, err := f.payments.Record(f.ctx, payment.NewPayment{
		StudentID:      f.student.ID,
		AcademicYearID: f.year.ID,
		Amount:         decimal.RequireFromString(amount),
		PaymentType:    payment.TypeTuition,
		PaymentMethod:  payment.MethodCash,
		Status:         status,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) read(t *testing.T, id int) string {
	t.Helper()
	_, file, err := f.svc.Download(f.ctx, id)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	return string(content)
}

func TestService_Generate(t *testing.T) {
	f := setup(t)

	t.Run("unknown payment", func(t *testing.T) {
		_, err := f.svc.Generate(f.ctx, 404)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("failed payment", func(t *testing.T) {
		p := f.pay(t, "100", payment.StatusFailed)
		_, err := f.svc.Generate(f.ctx, p.ID)
		assert.Equal(t, receipt.ErrPaymentFailed, errors.Cause(err))
	})

	t.Run("no principal", func(t *testing.T) {
		p := f.pay(t, "100", payment.StatusCompleted)
		_, err := f.svc.Generate(context.Background(), p.ID)
		assert.True(t, core.IsValidation(err))
	})

	p := f.pay(t, "250", payment.StatusCompleted)
	rcpt, err := f.svc.Generate(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "REC-202506010001", rcpt.ReceiptNumber)
	assert.Equal(t, p.ID, rcpt.PaymentID)
	assert.Equal(t, 1, rcpt.CreatedBy)

	stored, err := f.svc.Get(f.ctx, rcpt.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasPDF(), "pdf rendered after generation")
	// 1000 - (100 + 250); the failed payment is left out
	assert.Equal(t, "%PDF-1.3 REC-202506010001 balance 650.00", f.read(t, rcpt.ID))

	again, err := f.svc.Generate(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, rcpt.ID, again.ID)
	assert.Equal(t, 1, f.renderer.calls)

	logs, err := f.auditor.Query(f.ctx, audit.QueryFilter{Entity: audit.EntityReceipt})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestService_Regenerate(t *testing.T) {
	f := setup(t)
	p := f.pay(t, "400", payment.StatusCompleted)
	rcpt, err := f.svc.Generate(f.ctx, p.ID)
	require.NoError(t, err)
	rcpt, err = f.svc.Get(f.ctx, rcpt.ID)
	require.NoError(t, err)

	f.pay(t, "100", payment.StatusPending)
	regen, err := f.svc.Regenerate(f.ctx, rcpt.ID)
	require.NoError(t, err)

	assert.Equal(t, rcpt.ReceiptNumber, regen.ReceiptNumber)
	assert.Equal(t, rcpt.CreatedAt, regen.CreatedAt)
	assert.NotEqual(t, rcpt.PDFPath.String, regen.PDFPath.String)
	// still the balance right after the 400 payment, the later one is left out
	assert.Equal(t, "%PDF-1.3 REC-202506010001 balance 600.00", f.read(t, rcpt.ID))

	_, err = f.svc.Regenerate(f.ctx, 404)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Email(t *testing.T) {
	f := setup(t)
	p := f.pay(t, "300", payment.StatusCompleted)
	rcpt, err := f.svc.Generate(f.ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, rcpt.IsEmailed)

	tests := []struct {
		name   string
		to     []mail.Address
		wantTo string
	}{
		{name: "guardian by default", wantTo: "neema@test.cd"},
		{name: "explicit recipient", to: []mail.Address{{Address: "bursar@test.cd"}}, wantTo: "bursar@test.cd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ResetSentMessages()

			emailed, err := f.svc.Email(f.ctx, rcpt.ID, tt.to)
			require.NoError(t, err)
			assert.True(t, emailed.IsEmailed)
			assert.True(t, emailed.EmailedAt.Valid)

			sent := emailsvc.LastSentMessages()
			require.Len(t, sent, 1)
			msg := sent[0]
			assert.Equal(t, tt.wantTo, msg.To[0].Address)
			assert.Equal(t, "Receipt REC-202506010001", msg.Subject)
			require.Len(t, msg.Attachments, 1)
			assert.Equal(t, "REC-202506010001.pdf", msg.Attachments[0].Filename)
			assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
			assert.True(t, strings.Contains(msg.TextContent, "REC-202506010001"))
			assert.True(t, strings.Contains(msg.TextContent, "Lycée Tuendelee"))
		})
	}
}

func TestService_EmailPaidInFull(t *testing.T) {
	f := setup(t)
	f.pay(t, "1000", payment.StatusCompleted)
	p := f.pay(t, "150", payment.StatusCompleted)
	rcpt, err := f.svc.Generate(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 REC-202506010001 balance -150.00", f.read(t, rcpt.ID))

	emailsvc.ResetSentMessages()
	_, err = f.svc.Email(f.ctx, rcpt.ID, nil)
	require.NoError(t, err)

	sent := emailsvc.LastSentMessages()
	require.Len(t, sent, 1)
	for _, content := range []string{sent[0].TextContent, sent[0].HTMLContent} {
		assert.Contains(t, content, "Paid in full")
		assert.Contains(t, content, "credit of 150.00")
		assert.NotContains(t, content, "Outstanding balance")
		assert.NotContains(t, content, "-150.00")
	}
}

func TestService_RenderPending(t *testing.T) {
	f := setup(t)
	f.renderer.fail = true

	var ids []int
	var numbers []string
	for _, amount := range []string{"10", "20", "30"} {
		rcpt, err := f.svc.Generate(f.ctx, f.pay(t, amount, payment.StatusCompleted).ID)
		require.NoError(t, err)
		ids = append(ids, rcpt.ID)
		numbers = append(numbers, rcpt.ReceiptNumber)
	}
	for _, id := range ids {
		rcpt, err := f.svc.Get(f.ctx, id)
		require.NoError(t, err)
		assert.False(t, rcpt.HasPDF())
	}

	n, last, err := f.svc.RenderPending(f.ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, ids[2], last)

	// a receipt that keeps failing is paged over
	f.renderer.fail = false
	f.renderer.failFor = map[string]bool{numbers[0]: true}
	n, last, err = f.svc.RenderPending(f.ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, ids[0], last)

	n, last, err = f.svc.RenderPending(f.ctx, last, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, ids[2], last)

	n, last, err = f.svc.RenderPending(f.ctx, last, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, ids[2], last, "empty page keeps the cursor")

	f.renderer.failFor = nil
	n, _, err = f.svc.RenderPending(f.ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	received, err := f.svc.Query(f.ctx, receipt.QueryFilter{StudentID: f.student.ID})
	require.NoError(t, err)
	require.Len(t, received, 3)
	assert.Equal(t, ids[2], received[0].ID, "newest first")
	for _, rcpt := range received {
		assert.True(t, rcpt.HasPDF())
	}
}
