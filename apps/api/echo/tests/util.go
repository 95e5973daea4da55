package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/audit"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/receipt"
	"github.com/trezcool/bursar/core/setting"
	"github.com/trezcool/bursar/core/student"
	"github.com/trezcool/bursar/core/user"
	appfs "github.com/trezcool/bursar/fs"
	emailsvc "github.com/trezcool/bursar/services/email"
	exportsvc "github.com/trezcool/bursar/services/export"
	logsvc "github.com/trezcool/bursar/services/logger"
	pdfsvc "github.com/trezcool/bursar/services/pdf"
	"github.com/trezcool/bursar/storage/database/memdb"
	"github.com/trezcool/bursar/storage/files"
	testutil "github.com/trezcool/bursar/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	*Server
	deps    ServerDeps
	conf    *core.Config
	usrRepo user.Repository
	repos   struct {
		students student.Repository
		payments payment.Repository
	}

	students    *student.Service
	years       *academicyear.Service
	enrollments *enrollment.Service
	payments    *payment.Service
	settings    *setting.Service
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	emailsvc.ResetSentMessages()

	// set up DB & repos
	db := memdb.Open()
	usrRepo := memdb.NewUserRepository(db)
	studentRepo := memdb.NewStudentRepository(db)
	yearRepo := memdb.NewAcademicYearRepository(db)
	enrollmentRepo := memdb.NewEnrollmentRepository(db)
	paymentRepo := memdb.NewPaymentRepository(db)

	// set up services
	store, err := files.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	auditor := audit.NewService(memdb.NewAuditRepository(db), logger)
	settings := setting.NewService(memdb.NewSettingRepository(db), auditor)
	balances := billing.NewService(memdb.NewLedger(db))

	deps := ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         user.NewService(usrRepo),
		StudentSvc:      student.NewService(studentRepo),
		AcademicYearSvc: academicyear.NewService(yearRepo),
		EnrollmentSvc:   enrollment.NewService(enrollmentRepo, studentRepo, yearRepo),
		PaymentSvc:      payment.NewService(paymentRepo, enrollmentRepo, auditor),
		BillingSvc:      balances,
		ReceiptSvc: receipt.NewServiceMock(receipt.Deps{
			Repo:             memdb.NewReceiptRepository(db),
			Payments:         paymentRepo,
			Students:         studentRepo,
			Years:            yearRepo,
			Balances:         balances,
			Settings:         settings,
			Renderer:         pdfsvc.NewReceiptRenderer(conf),
			Files:            store,
			Mailer:           emailsvc.NewConsoleServiceMock(conf, logger),
			Auditor:          auditor,
			Logger:           logger,
			SequenceAttempts: conf.Receipts.SequenceAttempts,
		}),
		SettingSvc:     settings,
		AuditSvc:       auditor,
		LedgerExporter: exportsvc.NewLedgerExporter(paymentRepo, studentRepo, balances, logger),
	}

	app := &testApp{
		Server:      NewServer(deps),
		deps:        deps,
		conf:        conf,
		usrRepo:     usrRepo,
		students:    deps.StudentSvc,
		years:       deps.AcademicYearSvc,
		enrollments: deps.EnrollmentSvc,
		payments:    deps.PaymentSvc,
		settings:    settings,
	}
	app.repos.students = studentRepo
	app.repos.payments = paymentRepo
	return app
}

func (app *testApp) createUser(t *testing.T, uname string, roles ...string) user.User {
	return testutil.CreateUser(t, app.usrRepo, uname, uname, uname+"@test.cd", "", roles, true)
}

// enrolledStudent creates a student enrolled in the current academic year.
func (app *testApp) enrolledStudent(t *testing.T, number string, fee int64, discountPct int64) (student.Student, academicyear.AcademicYear) {
	t.Helper()
	ctx := core.ContextWithPrincipal(context.Background(), core.Principal{UserID: 1, Roles: []string{user.RoleAdmin}})

	year, err := app.years.Current(ctx)
	if core.IsNotFound(err) {
		year, err = app.years.Create(ctx, academicyear.NewAcademicYear{
			Name: "2024-2025", StartDate: "2024-09-01", EndDate: "2025-07-31", IsCurrent: true,
		})
	}
	require.NoError(t, err)

	stu, err := app.students.Create(ctx, student.NewStudent{
		StudentNumber: number, FirstName: "Amani", LastName: "Kabila",
		GuardianName: "Neema Kabila", GuardianEmail: "neema@test.cd",
	})
	require.NoError(t, err)
	_, err = app.enrollments.Enroll(ctx, enrollment.NewEnrollment{
		StudentID:          stu.ID,
		AcademicYearID:     year.ID,
		TuitionFee:         decimal.NewFromInt(fee),
		DiscountPercentage: decimal.NewFromInt(discountPct),
	})
	require.NoError(t, err)
	return stu, year
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "%s = %s; want %s", field, got, want)
}
