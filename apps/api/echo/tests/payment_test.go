package tests

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
	"github.com/trezcool/bursar/core/user"
	exportsvc "github.com/trezcool/bursar/services/export"
)

var sprintf = fmt.Sprintf

func Test_paymentApi_create(t *testing.T) {
	app := setup(t)

	bursar := app.createUser(t, "bursar", user.RoleBursar)
	bursarToken := getToken(t, app.conf, bursar)
	auditorToken := getToken(t, app.conf, app.createUser(t, "auditor", user.RoleAuditor))
	stu, year := app.enrolledStudent(t, "S001", 1000, 10)
	other, _ := app.enrolledStudent(t, "S002", 1000, 0)

	body := func(studentID int, amount string) []byte {
		return []byte(sprintf(
			`{"student_id": %d, "academic_year_id": %d, "amount": %q, "payment_type": "tuition", "payment_method": "mobile_money", "reference_number": "MP-77"}`,
			studentID, year.ID, amount,
		))
	}

	runHTTPTests(t, app, []httpTest{
		{name: "auditors read only", method: http.MethodPost, path: "/api/payments", body: body(stu.ID, "10"), token: auditorToken, wantCode: http.StatusForbidden},
		{
			name: "sub-cent amount", method: http.MethodPost, path: "/api/payments", body: body(stu.ID, "10.001"), token: bursarToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"amount": "amount must not have more than 2 decimal places"}),
		},
		{
			name: "non positive amount", method: http.MethodPost, path: "/api/payments", body: body(stu.ID, "0"), token: bursarToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "not enrolled", method: http.MethodPost, path: "/api/payments", body: body(other.ID+1, "10"), token: bursarToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"academic_year_id": "the student is not enrolled in this academic year"}),
		},
	})

	t.Run("recorded with balance", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/payments", bursarToken, body(stu.ID, "250.50"))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.RecordPaymentResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, bursar.ID, resp.Payment.CreatedBy)
		assert.Equal(t, payment.StatusCompleted, resp.Payment.Status)
		assert.Equal(t, "MP-77", resp.Payment.ReferenceNumber.String)
		assertMoney(t, "250.5", resp.Payment.Amount, "amount")
		assertMoney(t, "649.5", resp.Balance.Balance, "balance")
	})

	t.Run("audited", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/audit-logs?entity=payment", getToken(t, app.conf, app.createUser(t, "admin", user.RoleAdmin)))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var logs []map[string]interface{}
		unmarshal(t, rec, &logs)
		require.Len(t, logs, 1)
		assert.Equal(t, "create", logs[0]["action"])
	})
}

func Test_paymentApi_query(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	stu, year := app.enrolledStudent(t, "S001", 1000, 0)

	var ids []int
	for _, p := range []struct{ amount, date, method string }{
		{"100", "2024-10-01", "cash"},
		{"200", "2024-11-15", "card"},
		{"300", "2024-12-20", "cash"},
	} {
		req, rec := newAuthRequest(http.MethodPost, "/api/payments", bursarToken, []byte(sprintf(
			`{"student_id": %d, "academic_year_id": %d, "amount": %q, "payment_date": %q, "payment_type": "tuition", "payment_method": %q}`,
			stu.ID, year.ID, p.amount, p.date, p.method,
		)))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp echoapi.RecordPaymentResponse
		unmarshal(t, rec, &resp)
		ids = append(ids, resp.Payment.ID)
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []int
	}{
		{name: "newest first", query: "", wantIDs: []int{ids[2], ids[1], ids[0]}},
		{name: "by method", query: "payment_method=cash", wantIDs: []int{ids[2], ids[0]}},
		{name: "date range", query: "date_from=2024-11-01T00:00:00Z&date_to=2024-12-01T00:00:00Z", wantIDs: []int{ids[1]}},
		{name: "by amount", query: "ordering=amount", wantIDs: []int{ids[0], ids[1], ids[2]}},
		{name: "other student", query: "student_id=" + strconv.Itoa(stu.ID+1), wantIDs: []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/api/payments?"+tt.query, bursarToken)
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var payments []payment.Payment
			unmarshal(t, rec, &payments)
			gotIDs := make([]int, 0, len(payments))
			for _, p := range payments {
				gotIDs = append(gotIDs, p.ID)
			}
			assert.Equal(t, tt.wantIDs, gotIDs)
		})
	}

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/payments/"+strconv.Itoa(ids[0]), bursarToken, []byte(`{"status": "failed", "notes": "bounced"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p payment.Payment
		unmarshal(t, rec, &p)
		assert.Equal(t, payment.StatusFailed, p.Status)
		assert.Equal(t, "bounced", p.Notes)
		assertMoney(t, "100", p.Amount, "amount")
	})
}

func Test_paymentApi_export(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	stu, year := app.enrolledStudent(t, "S001", 1000, 10)
	req, rec := newAuthRequest(http.MethodPost, "/api/payments", bursarToken, []byte(sprintf(
		`{"student_id": %d, "academic_year_id": %d, "amount": "250.50", "payment_type": "tuition", "payment_method": "cash"}`, stu.ID, year.ID,
	)))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodGet, "/api/payments/export", bursarToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, exportsvc.ContentType, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), `attachment; filename="payments-`))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows(exportsvc.PaymentsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	balances, err := f.GetRows(exportsvc.BalancesSheet)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Contains(t, balances[1], "649.5")
}

// unreachableStudents fails every student lookup.
type unreachableStudents struct {
	student.Repository
}

func (unreachableStudents) GetStudent(context.Context, int) (student.Student, error) {
	return student.Student{}, errors.New("connection reset by peer")
}

func Test_paymentApi_exportFailure(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	stu, year := app.enrolledStudent(t, "S001", 1000, 10)
	req, rec := newAuthRequest(http.MethodPost, "/api/payments", bursarToken, []byte(sprintf(
		`{"student_id": %d, "academic_year_id": %d, "amount": "100", "payment_type": "tuition", "payment_method": "cash"}`, stu.ID, year.ID,
	)))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	deps := app.deps
	deps.LedgerExporter = exportsvc.NewLedgerExporter(app.repos.payments, unreachableStudents{app.repos.students}, deps.BillingSvc, deps.Logger)
	srv := echoapi.NewServer(deps)

	req, rec = newAuthRequest(http.MethodGet, "/api/payments/export", bursarToken)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.NotEqual(t, exportsvc.ContentType, rec.Header().Get("Content-Type"))
	checkCodeAndData(t, httpTest{wantCode: http.StatusInternalServerError, wantData: marchallObj(t, httpErr{Error: "Internal Server Error"})}, rec)
}
