package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
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
	emailsvc "github.com/trezcool/bursar/services/email"
	exportsvc "github.com/trezcool/bursar/services/export"
	logsvc "github.com/trezcool/bursar/services/logger"
	pdfsvc "github.com/trezcool/bursar/services/pdf"
	"github.com/trezcool/bursar/services/scheduler"
	"github.com/trezcool/bursar/storage/database"
	"github.com/trezcool/bursar/storage/database/memdb"
	pgrepos "github.com/trezcool/bursar/storage/database/postgres"
	"github.com/trezcool/bursar/storage/files"
)

const engineMemory = "memory"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	SchedulerLoggerParam struct {
		dig.In
		Logger core.Logger `name:"schedulerLogger"`
	}

	Repositories struct {
		dig.Out

		Users         user.Repository
		Students      student.Repository
		AcademicYears academicyear.Repository
		Enrollments   enrollment.Repository
		Payments      payment.Repository
		Receipts      receipt.Repository
		Settings      setting.Repository
		AuditLogs     audit.Repository
		Ledger        billing.Ledger
	}

	ReceiptParams struct {
		dig.In

		Conf     *core.Config
		Logger   core.Logger
		Repo     receipt.Repository
		Payments payment.Repository
		Students student.Repository
		Years    academicyear.Repository
		Balances *billing.Service
		Settings *setting.Service
		Renderer receipt.Renderer
		Files    receipt.FileStore
		Mailer   core.EmailService
		Auditor  *audit.Service
	}
)

func newStdLogger(conf *core.Config, prefix string, flags int) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, prefix, flags), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newStdLogger(conf, "API : ", log.LstdFlags)
}

func newDBLogger(conf *core.Config) core.Logger {
	return newStdLogger(conf, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
}

func newSchedulerLogger(conf *core.Config) core.Logger {
	return newStdLogger(conf, "SCHED : ", log.LstdFlags)
}

// newDB returns a nil *sqlx.DB when running on the in-memory engine.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Database.Engine == engineMemory {
		return nil
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRepositories(conf *core.Config, db *sqlx.DB) Repositories {
	if conf.Database.Engine == engineMemory {
		mdb := memdb.Open()
		return Repositories{
			Users:         memdb.NewUserRepository(mdb),
			Students:      memdb.NewStudentRepository(mdb),
			AcademicYears: memdb.NewAcademicYearRepository(mdb),
			Enrollments:   memdb.NewEnrollmentRepository(mdb),
			Payments:      memdb.NewPaymentRepository(mdb),
			Receipts:      memdb.NewReceiptRepository(mdb),
			Settings:      memdb.NewSettingRepository(mdb),
			AuditLogs:     memdb.NewAuditRepository(mdb),
			Ledger:        memdb.NewLedger(mdb),
		}
	}
	return Repositories{
		Users:         pgrepos.NewUserRepository(db),
		Students:      pgrepos.NewStudentRepository(db),
		AcademicYears: pgrepos.NewAcademicYearRepository(db),
		Enrollments:   pgrepos.NewEnrollmentRepository(db),
		Payments:      pgrepos.NewPaymentRepository(db),
		Receipts:      pgrepos.NewReceiptRepository(db),
		Settings:      pgrepos.NewSettingRepository(db),
		AuditLogs:     pgrepos.NewAuditRepository(db),
		Ledger:        pgrepos.NewLedger(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newFileStore(conf *core.Config) (receipt.FileStore, error) {
	return files.NewLocalStore(conf.Receipts.StorageDir)
}

func newReceiptService(p ReceiptParams) *receipt.Service {
	return receipt.NewService(receipt.Deps{
		Repo:             p.Repo,
		Payments:         p.Payments,
		Students:         p.Students,
		Years:            p.Years,
		Balances:         p.Balances,
		Settings:         p.Settings,
		Renderer:         p.Renderer,
		Files:            p.Files,
		Mailer:           p.Mailer,
		Auditor:          p.Auditor,
		Logger:           p.Logger,
		SequenceAttempts: p.Conf.Receipts.SequenceAttempts,
	})
}

func newReceiptSweeper(conf *core.Config, svc *receipt.Service, loggerParam SchedulerLoggerParam) *scheduler.ReceiptSweeper {
	return scheduler.NewReceiptSweeper(conf, svc, loggerParam.Logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSchedulerLogger, dig.Name("schedulerLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newFileStore))
	must(c.Provide(pdfsvc.NewReceiptRenderer, dig.As(new(receipt.Renderer))))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(academicyear.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(audit.NewService))
	must(c.Provide(setting.NewService))
	must(c.Provide(payment.NewService))
	must(c.Provide(billing.NewService))
	must(c.Provide(newReceiptService))
	must(c.Provide(exportsvc.NewLedgerExporter))
	must(c.Provide(newReceiptSweeper))

	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
