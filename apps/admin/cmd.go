package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/bursar/core/user"
	"github.com/trezcool/bursar/services/scheduler"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	usrRepo  user.Repository
	receipts scheduler.PendingRenderer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  adduser -username USERNAME [-email EMAIL] [-name NAME] [-role ROLE] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  sweepreceipts [-limit N] [-after ID] - render the PDF of receipts still missing one")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "One of admin, bursar or auditor.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	sweepCmd := flag.NewFlagSet("sweepreceipts", flag.ContinueOnError)
	sweepLimit := sweepCmd.Int("limit", 500, "Maximum number of receipts to render.")
	sweepAfter := sweepCmd.Int("after", 0, "Only render receipts whose id is above this one.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Println("Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserRole)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "sweepreceipts":
		if err := sweepCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sweepLimit <= 0 || *sweepAfter < 0 {
			sweepCmd.Usage()
			return errHelp
		}
		return cli.sweepReceipts(*sweepAfter, *sweepLimit)

	default:
		cli.printUsage()
		return errHelp
	}
}

func readPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	return string(pwd), err
}
