package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

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
	exportsvc "github.com/trezcool/bursar/services/export"
)

type (
	// ServerDeps is filled by the DI container, or by hand in tests.
	ServerDeps struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc         *user.Service
		StudentSvc      *student.Service
		AcademicYearSvc *academicyear.Service
		EnrollmentSvc   *enrollment.Service
		PaymentSvc      *payment.Service
		BillingSvc      *billing.Service
		ReceiptSvc      *receipt.Service
		SettingSvc      *setting.Service
		AuditSvc        *audit.Service
		LedgerExporter  *exportsvc.LedgerExporter
	}

	Server struct {
		deps     ServerDeps
		auth     *authenticator
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		auth:     newAuthenticator(deps.Conf),
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	authed := []echo.MiddlewareFunc{middleware.JWTWithConfig(s.auth.jwtConfig), principalMiddleware}

	registerUserAPI(g, authed, s.deps.UserSvc, s.auth, s.deps.Validate)
	registerStudentAPI(g.Group("/students", authed...), s.deps.StudentSvc, s.deps.AcademicYearSvc, s.deps.BillingSvc, s.deps.Validate)
	registerAcademicYearAPI(g.Group("/academic-years", authed...), s.deps.AcademicYearSvc, s.deps.Validate)
	registerEnrollmentAPI(g.Group("/enrollments", authed...), s.deps.EnrollmentSvc, s.deps.Validate)
	registerPaymentAPI(g.Group("/payments", authed...), s.deps.PaymentSvc, s.deps.BillingSvc, s.deps.LedgerExporter, s.deps.Validate)
	registerReceiptAPI(g.Group("/receipts", authed...), s.deps.ReceiptSvc, s.deps.Validate)
	registerSettingAPI(g.Group("/settings", authed...), s.deps.SettingSvc, s.deps.Validate)
	registerAuditAPI(g.Group("/audit-logs", authed...), s.deps.AuditSvc)
}

// Start listens until the server is shut down; listen errors are sent on Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the owner of the server to shut it down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
