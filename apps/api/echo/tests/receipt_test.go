package tests

import (
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core/receipt"
	"github.com/trezcool/bursar/core/user"
	emailsvc "github.com/trezcool/bursar/services/email"
)

func (app *testApp) recordPayment(t *testing.T, token string, studentID, yearID int, amount, status string) int {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/api/payments", token, []byte(sprintf(
		`{"student_id": %d, "academic_year_id": %d, "amount": %q, "payment_type": "tuition", "payment_method": "cash", "status": %q}`,
		studentID, yearID, amount, status,
	)))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp echoapi.RecordPaymentResponse
	unmarshal(t, rec, &resp)
	return resp.Payment.ID
}

func (app *testApp) generateReceipt(t *testing.T, token string, paymentID int) receipt.Receipt {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/api/receipts/generate?payment_id="+strconv.Itoa(paymentID), token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rcpt receipt.Receipt
	unmarshal(t, rec, &rcpt)
	return rcpt
}

func Test_receiptApi_generate(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	auditorToken := getToken(t, app.conf, app.createUser(t, "auditor", user.RoleAuditor))
	stu, year := app.enrolledStudent(t, "S001", 1000, 0)
	first := app.recordPayment(t, bursarToken, stu.ID, year.ID, "100", "completed")
	second := app.recordPayment(t, bursarToken, stu.ID, year.ID, "200", "pending")
	failed := app.recordPayment(t, bursarToken, stu.ID, year.ID, "300", "failed")

	runHTTPTests(t, app, []httpTest{
		{name: "auditors read only", method: http.MethodPost, path: "/api/receipts/generate?payment_id=1", token: auditorToken, wantCode: http.StatusForbidden},
		{
			name: "payment required", method: http.MethodPost, path: "/api/receipts/generate", token: bursarToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"payment_id": "this field is required"}),
		},
		{name: "unknown payment", method: http.MethodPost, path: "/api/receipts/generate?payment_id=99", token: bursarToken, wantCode: http.StatusNotFound},
		{
			name: "failed payment", method: http.MethodPost, path: "/api/receipts/generate?payment_id=" + strconv.Itoa(failed), token: bursarToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"payment_id": "cannot issue a receipt for a failed payment"}),
		},
	})

	numRegex := regexp.MustCompile(`^REC-\d{8}(\d{4})$`)

	rcpt1 := app.generateReceipt(t, bursarToken, first)
	rcpt2 := app.generateReceipt(t, bursarToken, second)
	again := app.generateReceipt(t, bursarToken, first)

	m1 := numRegex.FindStringSubmatch(rcpt1.ReceiptNumber)
	m2 := numRegex.FindStringSubmatch(rcpt2.ReceiptNumber)
	require.Len(t, m1, 2, rcpt1.ReceiptNumber)
	require.Len(t, m2, 2, rcpt2.ReceiptNumber)
	assert.Equal(t, "0001", m1[1])
	assert.Equal(t, "0002", m2[1])
	assert.Equal(t, rcpt1.ID, again.ID)
	assert.Equal(t, rcpt1.ReceiptNumber, again.ReceiptNumber)

	t.Run("pdf rendered", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/receipts/"+strconv.Itoa(rcpt1.ID), auditorToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var got receipt.Receipt
		unmarshal(t, rec, &got)
		assert.True(t, got.HasPDF())
	})

	t.Run("query by payment", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/receipts?payment_id="+strconv.Itoa(second), auditorToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var got []receipt.Receipt
		unmarshal(t, rec, &got)
		require.Len(t, got, 1)
		assert.Equal(t, rcpt2.ReceiptNumber, got[0].ReceiptNumber)
	})
}

func Test_receiptApi_download(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	stu, year := app.enrolledStudent(t, "S001", 1000, 0)
	rcpt := app.generateReceipt(t, bursarToken, app.recordPayment(t, bursarToken, stu.ID, year.ID, "100", "completed"))

	for _, path := range []string{"/download", "/regenerate"} {
		method := http.MethodGet
		if path == "/regenerate" {
			method = http.MethodPost
		}
		req, rec := newAuthRequest(method, "/api/receipts/"+strconv.Itoa(rcpt.ID)+path, bursarToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		if path == "/download" {
			assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), rcpt.ReceiptNumber+".pdf")
			assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
		} else {
			var got receipt.Receipt
			unmarshal(t, rec, &got)
			assert.Equal(t, rcpt.ReceiptNumber, got.ReceiptNumber)
		}
	}

	runHTTPTests(t, app, []httpTest{
		{name: "unknown receipt", path: "/api/receipts/99/download", token: bursarToken, wantCode: http.StatusNotFound},
	})
}

func Test_receiptApi_email(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	stu, year := app.enrolledStudent(t, "S001", 1000, 0)
	rcpt := app.generateReceipt(t, bursarToken, app.recordPayment(t, bursarToken, stu.ID, year.ID, "100", "completed"))
	path := "/api/receipts/" + strconv.Itoa(rcpt.ID) + "/email"

	tests := []struct {
		name     string
		body     []byte
		wantCode int
		wantTo   mail.Address
	}{
		{name: "invalid address", body: []byte(`{"to": ["lol"]}`), wantCode: http.StatusBadRequest},
		{name: "guardian by default", wantCode: http.StatusAccepted, wantTo: mail.Address{Name: "Neema Kabila", Address: "neema@test.cd"}},
		{name: "explicit recipient", body: []byte(`{"to": ["Bursar@Test.cd"]}`), wantCode: http.StatusAccepted, wantTo: mail.Address{Address: "bursar@test.cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ResetSentMessages()

			var body [][]byte
			if tt.body != nil {
				body = append(body, tt.body)
			}
			req, rec := newAuthRequest(http.MethodPost, path, bursarToken, body...)
			app.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			sent := emailsvc.LastSentMessages()
			if tt.wantCode != http.StatusAccepted {
				assert.Empty(t, sent)
				return
			}

			var got receipt.Receipt
			unmarshal(t, rec, &got)
			assert.True(t, got.IsEmailed)
			assert.True(t, got.EmailedAt.Valid)

			require.Len(t, sent, 1)
			assert.Equal(t, []mail.Address{tt.wantTo}, sent[0].To)
			require.Len(t, sent[0].Attachments, 1)
			assert.Equal(t, rcpt.ReceiptNumber+".pdf", sent[0].Attachments[0].Filename)
			assert.Contains(t, sent[0].TextContent, rcpt.ReceiptNumber)
		})
	}
}
