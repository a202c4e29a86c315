package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	appfs "github.com/saidstrong/nuet-prep-academy-sub001/fs"
	emailsvc "github.com/saidstrong/nuet-prep-academy-sub001/services/email"
	logsvc "github.com/saidstrong/nuet-prep-academy-sub001/services/logger"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database/sqlxrepos"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	db, err := database.Open(conf)
	errAndDie(err)

	core.ParseEmailTemplates(conf, appfs.FS, logger)
	mailSvc := emailsvc.NewConsoleService(conf, logger)
	if !conf.Debug && conf.SendgridApiKey != "" {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	testRepo := sqlxrepos.NewAssessmentRepository(db)

	cli := commandLine{
		db:          db,
		logger:      logger,
		mailSvc:     mailSvc,
		validate:    validate,
		usrRepo:     usrRepo,
		testRepo:    testRepo,
		testSvc:     assessment.NewService(testRepo, course.NewService(courseRepo, user.NewService(usrRepo))),
		attemptRepo: sqlxrepos.NewAttemptRepository(db),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed: "+err.Error(), err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
