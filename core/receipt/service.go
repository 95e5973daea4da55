package receipt

import (
	"context"
	"io"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/audit"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/setting"
	"github.com/trezcool/bursar/core/student"
)

const (
	renderTimeout     = time.Minute
	emailTemplateName = "receipt"
	pdfContentType    = "application/pdf"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("receipt", nil)
	ErrPaymentFailed = core.NewValidationError(nil, core.FieldError{
		Field: "payment_id", Error: "cannot issue a receipt for a failed payment",
	})
	ErrNoRecipient = core.NewValidationError(nil, core.FieldError{
		Field: "to", Error: "the student has no contact email",
	})
)

type (
	// Document gathers everything printed on a receipt.
	Document struct {
		Receipt            Receipt
		Payment            payment.Payment
		Student            student.Student
		AcademicYear       academicyear.AcademicYear
		Balance            billing.Balance // right after Payment
		InstitutionName    string
		InstitutionAddress string
		Currency           string
	}

	Renderer interface {
		Render(doc Document) ([]byte, error)
	}

	// FileStore keeps rendered PDFs. Save returns the path to persist on the receipt.
	FileStore interface {
		Save(ctx context.Context, name string, content []byte) (string, error)
		Open(ctx context.Context, path string) (io.ReadCloser, error)
	}

	Deps struct {
		Repo             Repository
		Payments         payment.Repository
		Students         student.Repository
		Years            academicyear.Repository
		Balances         *billing.Service
		Settings         setting.Reader
		Renderer         Renderer
		Files            FileStore
		Mailer           core.EmailService
		Auditor          *audit.Service
		Logger           core.Logger
		SequenceAttempts int
	}

	Service struct {
		deps      Deps
		sequencer *Sequencer
		dispatch  func(func())
	}

	emailData struct {
		RecipientName   string
		ReceiptNumber   string
		InstitutionName string
		Amount          string
		Currency        string
		PaymentDate     string
		StudentName     string
		AcademicYear    string
		Balance         string
		PaidInFull      bool
		Credit          string
	}
)

// NewService renders the PDFs of newly issued receipts in the background.
func NewService(deps Deps) *Service {
	return &Service{
		deps:      deps,
		sequencer: NewSequencer(deps.Repo, deps.Settings, deps.SequenceAttempts),
		dispatch:  func(fn func()) { go fn() },
	}
}

// NewServiceMock renders synchronously.
func NewServiceMock(deps Deps) *Service {
	svc := NewService(deps)
	svc.dispatch = func(fn func()) { fn() }
	return svc
}

// Generate issues the receipt of a payment, or returns the one already issued.
func (svc *Service) Generate(ctx context.Context, paymentID int) (Receipt, error) {
	principal, err := core.MustPrincipal(ctx)
	if err != nil {
		return Receipt{}, err
	}
	p, err := svc.deps.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "getting payment")
	}
	if p.Status == payment.StatusFailed {
		return Receipt{}, ErrPaymentFailed
	}

	rcpt, created, err := svc.sequencer.Issue(ctx, p, principal.UserID)
	if err != nil {
		return Receipt{}, err
	}
	if !created {
		return rcpt, nil
	}

	svc.deps.Auditor.Record(ctx, audit.ActionGenerate, audit.EntityReceipt, rcpt.ID, map[string]interface{}{
		"receipt_number": rcpt.ReceiptNumber,
		"payment_id":     rcpt.PaymentID,
	})
	svc.renderAsync(rcpt)
	return rcpt, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Receipt, error) {
	return svc.deps.Repo.GetReceipt(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Receipt, error) {
	return svc.deps.Repo.QueryReceipts(ctx, filter)
}

// Regenerate renders the PDF again from current data. Only pdf_path changes.
func (svc *Service) Regenerate(ctx context.Context, id int) (Receipt, error) {
	rcpt, err := svc.deps.Repo.GetReceipt(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	doc, err := svc.document(ctx, rcpt)
	if err != nil {
		return Receipt{}, err
	}
	if rcpt, err = svc.render(ctx, doc); err != nil {
		return Receipt{}, err
	}
	svc.deps.Auditor.Record(ctx, audit.ActionRegenerate, audit.EntityReceipt, rcpt.ID, map[string]interface{}{
		"receipt_number": rcpt.ReceiptNumber,
	})
	return rcpt, nil
}

// Email sends the PDF to `to`, or to the student's contact when empty, and marks the receipt emailed.
func (svc *Service) Email(ctx context.Context, id int, to []mail.Address) (Receipt, error) {
	rcpt, err := svc.deps.Repo.GetReceipt(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	doc, err := svc.document(ctx, rcpt)
	if err != nil {
		return Receipt{}, err
	}

	if len(to) == 0 {
		name, addr := doc.Student.ContactEmail()
		if addr == "" {
			return Receipt{}, ErrNoRecipient
		}
		to = []mail.Address{{Name: name, Address: addr}}
	}
	if !rcpt.HasPDF() {
		if rcpt, err = svc.render(ctx, doc); err != nil {
			return Receipt{}, err
		}
	}

	file, err := svc.deps.Files.Open(ctx, rcpt.PDFPath.String)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "opening receipt pdf")
	}
	defer func() { _ = file.Close() }()

	recipientName := to[0].Name
	if recipientName == "" {
		recipientName = to[0].Address
	}
	msg := &core.EmailMessage{
		To:           to,
		Subject:      "Receipt " + rcpt.ReceiptNumber,
		TemplateName: emailTemplateName,
		TemplateData: emailData{
			RecipientName:   recipientName,
			ReceiptNumber:   rcpt.ReceiptNumber,
			InstitutionName: doc.InstitutionName,
			Amount:          doc.Payment.Amount.StringFixed(2),
			Currency:        doc.Currency,
			PaymentDate:     doc.Payment.PaymentDate.Format("2006-01-02"),
			StudentName:     doc.Student.FullName(),
			AcademicYear:    doc.AcademicYear.Name,
			Balance:         doc.Balance.Balance.StringFixed(2),
			PaidInFull:      doc.Balance.PaidInFull,
			Credit:          doc.Balance.Credit.StringFixed(2),
		},
	}
	if err := msg.Attach(file, rcpt.Filename(), pdfContentType); err != nil {
		return Receipt{}, err
	}
	svc.deps.Mailer.SendMessages(msg)

	rcpt, err = svc.deps.Repo.MarkReceiptEmailed(ctx, rcpt.ID, time.Now().UTC())
	if err != nil {
		return Receipt{}, errors.Wrap(err, "marking receipt emailed")
	}

	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		recipients = append(recipients, addr.Address)
	}
	svc.deps.Auditor.Record(ctx, audit.ActionEmail, audit.EntityReceipt, rcpt.ID, map[string]interface{}{
		"receipt_number": rcpt.ReceiptNumber,
		"to":             recipients,
	})
	return rcpt, nil
}

// Download opens the stored PDF, rendering it first when still missing. The caller closes it.
func (svc *Service) Download(ctx context.Context, id int) (Receipt, io.ReadCloser, error) {
	rcpt, err := svc.deps.Repo.GetReceipt(ctx, id)
	if err != nil {
		return Receipt{}, nil, err
	}
	if !rcpt.HasPDF() {
		doc, err := svc.document(ctx, rcpt)
		if err != nil {
			return Receipt{}, nil, err
		}
		if rcpt, err = svc.render(ctx, doc); err != nil {
			return Receipt{}, nil, err
		}
	}
	file, err := svc.deps.Files.Open(ctx, rcpt.PDFPath.String)
	if err != nil {
		return Receipt{}, nil, errors.Wrap(err, "opening receipt pdf")
	}
	return rcpt, file, nil
}

// RenderPending renders the next page of up to limit receipts whose PDF is missing, starting after
// afterID. It returns how many succeeded and the last id of the page (afterID when the page is
// empty) to continue from. Failures are logged and left for the next sweep.
func (svc *Service) RenderPending(ctx context.Context, afterID, limit int) (rendered, lastID int, err error) {
	pending, err := svc.deps.Repo.ListPendingReceipts(ctx, afterID, limit)
	if err != nil {
		return 0, afterID, errors.Wrap(err, "listing pending receipts")
	}

	lastID = afterID
	for _, rcpt := range pending {
		if err := ctx.Err(); err != nil {
			return rendered, lastID, err
		}
		lastID = rcpt.ID
		doc, err := svc.document(ctx, rcpt)
		if err == nil {
			_, err = svc.render(ctx, doc)
		}
		if err != nil {
			svc.deps.Logger.Error("rendering pending receipt", errors.Wrap(err, rcpt.ReceiptNumber))
			continue
		}
		rendered++
	}
	return rendered, lastID, nil
}

func (svc *Service) renderAsync(rcpt Receipt) {
	svc.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
		defer cancel()

		doc, err := svc.document(ctx, rcpt)
		if err == nil {
			_, err = svc.render(ctx, doc)
		}
		if err != nil {
			svc.deps.Logger.Error("rendering receipt", errors.Wrap(err, rcpt.ReceiptNumber))
		}
	})
}

func (svc *Service) render(ctx context.Context, doc Document) (Receipt, error) {
	content, err := svc.deps.Renderer.Render(doc)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "rendering receipt pdf")
	}
	path, err := svc.deps.Files.Save(ctx, doc.Receipt.Filename(), content)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "saving receipt pdf")
	}
	return svc.deps.Repo.SetReceiptPDF(ctx, doc.Receipt.ID, path)
}

func (svc *Service) document(ctx context.Context, rcpt Receipt) (Document, error) {
	doc := Document{Receipt: rcpt}
	var err error

	if doc.Payment, err = svc.deps.Payments.GetPayment(ctx, rcpt.PaymentID); err != nil {
		return Document{}, errors.Wrap(err, "getting payment")
	}
	if doc.Student, err = svc.deps.Students.GetStudent(ctx, rcpt.StudentID); err != nil {
		return Document{}, errors.Wrap(err, "getting student")
	}
	if doc.AcademicYear, err = svc.deps.Years.GetAcademicYear(ctx, rcpt.AcademicYearID); err != nil {
		return Document{}, errors.Wrap(err, "getting academic year")
	}
	if doc.Balance, err = svc.deps.Balances.BalanceAfter(ctx, doc.Payment); err != nil {
		return Document{}, err
	}

	settings := []struct {
		name string
		dst  *string
	}{
		{setting.InstitutionName, &doc.InstitutionName},
		{setting.InstitutionAddress, &doc.InstitutionAddress},
		{setting.Currency, &doc.Currency},
	}
	for _, s := range settings {
		if *s.dst, err = svc.deps.Settings.Get(ctx, s.name, setting.Defaults[s.name]); err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}
