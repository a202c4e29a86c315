// Package di wires the API process with a dig container.
package di

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/saidstrong/nuet-prep-academy-sub001/apps/api/echo"
	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/enrollment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/gamification"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	emailsvc "github.com/saidstrong/nuet-prep-academy-sub001/services/email"
	logsvc "github.com/saidstrong/nuet-prep-academy-sub001/services/logger"
	schedsvc "github.com/saidstrong/nuet-prep-academy-sub001/services/scheduler"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database/sqlxrepos"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type SchedLoggerParam struct {
	dig.In
	Logger core.Logger `name:"schedLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newSchedLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "SCHED : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, loggerParam.Logger); err != nil {
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

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newScheduler(conf *core.Config, sweeper schedsvc.AttemptSweeper, loggerParam SchedLoggerParam) (*schedsvc.Scheduler, error) {
	return schedsvc.NewScheduler(conf, sweeper, loggerParam.Logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSchedLogger, dig.Name("schedLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository), new(enrollment.CourseGetter))))
	must(c.Provide(sqlxrepos.NewEnrollmentRepository, dig.As(new(enrollment.Repository))))
	must(c.Provide(sqlxrepos.NewAssessmentRepository, dig.As(new(assessment.Repository))))
	must(c.Provide(sqlxrepos.NewAttemptRepository, dig.As(new(attempt.Repository))))
	must(c.Provide(sqlxrepos.NewGamificationRepository, dig.As(new(gamification.Repository))))

	// services
	must(c.Provide(user.NewService, dig.As(
		new(user.ServiceInterface),
		new(course.UserGetter),
		new(enrollment.UserGetter),
		new(attempt.UserGetter),
		new(gamification.UserGetter),
	)))
	must(c.Provide(course.NewService, dig.As(new(course.ServiceInterface), new(assessment.CourseService))))
	must(c.Provide(enrollment.NewService, dig.As(new(enrollment.ServiceInterface), new(attempt.EnrollmentChecker))))
	must(c.Provide(assessment.NewService, dig.As(new(assessment.ServiceInterface), new(attempt.TestSource))))
	must(c.Provide(attempt.NewService, dig.As(new(attempt.ServiceInterface), new(schedsvc.AttemptSweeper))))
	must(c.Provide(gamification.NewService, dig.As(new(gamification.ServiceInterface))))

	// runners
	must(c.Provide(newScheduler))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
