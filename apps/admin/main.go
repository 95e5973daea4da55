package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/audit"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/receipt"
	"github.com/trezcool/bursar/core/setting"
	emailsvc "github.com/trezcool/bursar/services/email"
	logsvc "github.com/trezcool/bursar/services/logger"
	pdfsvc "github.com/trezcool/bursar/services/pdf"
	"github.com/trezcool/bursar/storage/database"
	pgrepos "github.com/trezcool/bursar/storage/database/postgres"
	"github.com/trezcool/bursar/storage/files"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	rl := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rl.Enable(!conf.Debug)
	logger = rl

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	receipts, err := newReceiptService(conf, db)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		db:       db,
		usrRepo:  pgrepos.NewUserRepository(db),
		receipts: receipts,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Info("error: " + err.Error())
		}
		os.Exit(1)
	}
}

func newReceiptService(conf *core.Config, db *sqlx.DB) (*receipt.Service, error) {
	store, err := files.NewLocalStore(conf.Receipts.StorageDir)
	if err != nil {
		return nil, err
	}
	auditor := audit.NewService(pgrepos.NewAuditRepository(db), logger)
	return receipt.NewService(receipt.Deps{
		Repo:             pgrepos.NewReceiptRepository(db),
		Payments:         pgrepos.NewPaymentRepository(db),
		Students:         pgrepos.NewStudentRepository(db),
		Years:            pgrepos.NewAcademicYearRepository(db),
		Balances:         billing.NewService(pgrepos.NewLedger(db)),
		Settings:         setting.NewService(pgrepos.NewSettingRepository(db), auditor),
		Renderer:         pdfsvc.NewReceiptRenderer(conf),
		Files:            store,
		Mailer:           emailsvc.NewConsoleService(conf, logger),
		Auditor:          auditor,
		Logger:           logger,
		SequenceAttempts: conf.Receipts.SequenceAttempts,
	}), nil
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
