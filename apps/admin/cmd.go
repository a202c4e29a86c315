package main

import (
	"context"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type questionImporter interface {
	ImportQuestions(ctx context.Context, testID string, nqs []assessment.NewQuestion) (int, error)
}

type commandLine struct {
	db          *sqlx.DB
	logger      core.Logger
	mailSvc     core.EmailService
	validate    *validator.Validate
	usrRepo     user.Repository
	testRepo    assessment.Repository
	testSvc     questionImporter
	attemptRepo attempt.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  importquestions -test TEST_ID -file FILE.xlsx - append the questions of a workbook to a test")
	fmt.Println("  exportresults -test TEST_ID -file FILE.xlsx [-email EMAIL] - write the submitted attempts of a test to a workbook")
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	importCmd := flag.NewFlagSet("importquestions", flag.ContinueOnError)
	importTest := importCmd.String("test", "", "The ID of the test.")
	importFile := importCmd.String("file", "", "The xlsx workbook to read.")

	exportCmd := flag.NewFlagSet("exportresults", flag.ContinueOnError)
	exportTest := exportCmd.String("test", "", "The ID of the test.")
	exportFile := exportCmd.String("file", "", "The xlsx workbook to write.")
	exportEmail := exportCmd.String("email", "", "Also send the workbook to this address.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserAdmin)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "importquestions":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importTest == "" || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importQuestions(*importTest, *importFile)
	case "exportresults":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *exportTest == "" || *exportFile == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.exportResults(*exportTest, *exportFile, *exportEmail)
	default:
		cli.printUsage()
		return errHelp
	}
}
