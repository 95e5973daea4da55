package pdfsvc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/divan/num2words"
	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/receipt"
)

const (
	dateLayout = "02 Jan 2006"
	qrSize     = 256 // px
	qrImage    = "receipt-qr"
)

var hundred = decimal.NewFromInt(100)

// ReceiptRenderer lays a receipt out on one A4 page.
type ReceiptRenderer struct {
	appName string
}

var _ receipt.Renderer = (*ReceiptRenderer)(nil)

func NewReceiptRenderer(conf *core.Config) *ReceiptRenderer {
	return &ReceiptRenderer{appName: conf.AppName}
}

func (r *ReceiptRenderer) Render(doc receipt.Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+doc.Receipt.ReceiptNumber, true)
	pdf.SetCreator(r.appName, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// header
	institution := doc.InstitutionName
	if institution == "" {
		institution = r.appName
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, tr(institution), "", 1, "L", false, 0, "")
	if doc.InstitutionAddress != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(120, 5, tr(doc.InstitutionAddress), "", "L", false)
	}

	code, err := qrcode.Encode(doc.Receipt.ReceiptNumber, qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encoding qr code")
	}
	pdf.RegisterImageOptionsReader(qrImage, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(code))
	pdf.ImageOptions(qrImage, 160, 15, 30, 30, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetY(50)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "PAYMENT RECEIPT", "B", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Receipt No.", doc.Receipt.ReceiptNumber},
		{"Issued on", doc.Receipt.CreatedAt.Format(dateLayout)},
		{"Student", fmt.Sprintf("%s (%s)", doc.Student.FullName(), doc.Student.StudentNumber)},
		{"Academic year", doc.AcademicYear.Name},
		{"Payment date", doc.Payment.PaymentDate.Format(dateLayout)},
		{"Payment type", humanize(doc.Payment.PaymentType)},
		{"Payment method", humanize(doc.Payment.PaymentMethod)},
	}
	if doc.Payment.ReferenceNumber.Valid {
		rows = append(rows, [2]string{"Reference", doc.Payment.ReferenceNumber.String})
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(row[1]), "", 1, "L", false, 0, "")
	}

	// amount
	pdf.Ln(4)
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(50, 10, "Amount", "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 10, money(doc.Payment.Amount, doc.Currency), "1", 1, "R", true, 0, "")
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, tr(AmountInWords(doc.Payment.Amount, doc.Currency)), "", "L", false)

	// balance
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Account summary", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	summary := accountSummary(doc.Balance, doc.Currency)
	for i, line := range summary {
		if i == len(summary)-1 {
			pdf.SetFont("Helvetica", "B", 11)
			if doc.Balance.PaidInFull {
				pdf.SetTextColor(46, 125, 50)
			}
		}
		pdf.CellFormat(100, 7, line[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, line[1], "", 1, "R", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)

	pdf.SetY(-30)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, "This receipt was generated electronically and is valid without signature.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "writing pdf")
	}
	return buf.Bytes(), nil
}

// accountSummary lists the balance lines after the payment. The last line reads "Paid in full"
// once nothing is left to pay, with the credit when overpaid.
func accountSummary(b billing.Balance, currency string) [][2]string {
	lines := [][2]string{
		{"Tuition fee", money(b.TuitionFee, currency)},
		{"Discount", money(b.DiscountAmount.Neg(), currency)},
		{"Scholarship", money(b.ScholarshipAmount.Neg(), currency)},
		{"Total due", money(b.TotalDue, currency)},
		{"Total paid", money(b.TotalPaid, currency)},
	}
	switch {
	case b.PaidInFull && b.Credit.IsPositive():
		return append(lines, [2]string{"Paid in full", "Credit " + money(b.Credit, currency)})
	case b.PaidInFull:
		return append(lines, [2]string{"Paid in full", money(decimal.Zero, currency)})
	default:
		return append(lines, [2]string{"Balance", money(b.Balance, currency)})
	}
}

func money(d decimal.Decimal, currency string) string {
	return strings.TrimSpace(d.StringFixed(2) + " " + currency)
}

func humanize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// AmountInWords spells the whole part of amount and appends the cents as a fraction,
// e.g. "One thousand two hundred and fifty and 75/100 USD".
func AmountInWords(amount decimal.Decimal, currency string) string {
	amount = core.RoundMoney(amount.Abs())
	whole := amount.Truncate(0)
	cents := amount.Sub(whole).Mul(hundred).IntPart()

	words := num2words.ConvertAnd(int(whole.IntPart()))
	words = strings.ToUpper(words[:1]) + words[1:]
	return strings.TrimSpace(fmt.Sprintf("%s and %02d/100 %s", words, cents, currency))
}
