package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	appfs "github.com/saidstrong/nuet-prep-academy-sub001/fs"
	emailsvc "github.com/saidstrong/nuet-prep-academy-sub001/services/email"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database/sqlxrepos"
	"github.com/saidstrong/nuet-prep-academy-sub001/testutil"
)

var (
	usrRepo     user.Repository
	courseRepo  course.Repository
	testRepo    assessment.Repository
	attemptRepo attempt.Repository
	mailSvc     *emailsvc.ConsoleServiceMock
)

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo = sqlxrepos.NewUserRepository(db)
	courseRepo = sqlxrepos.NewCourseRepository(db)
	testRepo = sqlxrepos.NewAssessmentRepository(db)
	attemptRepo = sqlxrepos.NewAttemptRepository(db)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)

	conf := core.NewTestConfig()
	core.ParseEmailTemplates(conf, appfs.FS, testutil.NopLogger{})
	mailSvc = emailsvc.NewConsoleServiceMock(conf, testutil.NopLogger{})

	// start CLI
	return &commandLine{
		db:          db,
		logger:      testutil.NopLogger{},
		mailSvc:     mailSvc,
		validate:    validate,
		usrRepo:     usrRepo,
		testRepo:    testRepo,
		testSvc:     assessment.NewService(testRepo, course.NewService(courseRepo, user.NewService(usrRepo))),
		attemptRepo: attemptRepo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sqlx.DB, logger core.Logger, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, usrRepo, "Existing", "exist", "exist@test.cd", "mdr", []string{user.RoleStudent}, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "boss"}, extra: extra{pwd: "lol"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "boss", "-email", "boss@test.cd"}, wantErr: errHelp},
		{name: "invalid email", args: []string{"adduser", "-username", "boss", "-email", "boss"}, extra: extra{pwd: "lol"}, wantErrStr: "invalid email"},
		{name: "create admin", args: []string{"adduser", "-username", "Boss", "-email", "BOSS@test.cd", "-admin"}, extra: extra{pwd: "lol"}},
		{name: "update existing", args: []string{"adduser", "-username", "exist", "-email", "new@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}

		t.Run(tt.name, func(t *testing.T) {
			mockPassword(pwd)
			tt.check(t, cli.run(args))
		})
	}

	boss, err := usrRepo.GetByUsername(ctx, "boss")
	require.NoError(t, err)
	assert.Equal(t, "boss@test.cd", boss.Email)
	assert.True(t, boss.IsActive)
	assert.True(t, boss.IsAdmin())
	assert.NoError(t, boss.CheckPassword("lol"))

	updated, err := usrRepo.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@test.cd", updated.Email)
	assert.True(t, updated.IsActive)
	assert.Equal(t, []string{user.RoleStudent}, updated.Roles)
	assert.NoError(t, updated.CheckPassword("lmao"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}

		t.Run(tt.name, func(t *testing.T) {
			mockPassword(pwd)
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				refreshedUsr, err := usrRepo.GetByID(context.Background(), usr.ID)
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash), "failed to update new password")
				assert.NoError(t, refreshedUsr.CheckPassword(pwd))
			}
		})
	}
}

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", addr, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func Test_commandLine_importQuestions(t *testing.T) {
	cli := setup(t)
	dir := t.TempDir()

	tutor := testutil.CreateUser(t, usrRepo, "Tutor", "tutor", "tutor@test.cd", "mdr", []string{user.RoleTutor}, true)
	crs, _ := testutil.CreateCourse(t, courseRepo, "Maths", tutor.ID, course.StatusActive, 0)
	tst, _ := testutil.CreateTest(t, testRepo, crs.ID, "Mock 1", assessment.StatusDraft, time.Hour, 1, 0)

	header := []interface{}{"kind", "text", "options", "correct", "accepted answers", "points"}
	valid := filepath.Join(dir, "valid.xlsx")
	writeWorkbook(t, valid, [][]interface{}{
		header,
		{"SINGLE_CHOICE", "2 + 2 = ?", "3|4|5", "2", "", 2},
		{"short_answer", "Capital of Kazakhstan?", "", "", "Astana|Nur-Sultan", ""},
	})
	invalid := filepath.Join(dir, "invalid.xlsx")
	writeWorkbook(t, invalid, [][]interface{}{
		header,
		{"SINGLE_CHOICE", "2 + 2 = ?", "3|4|5", "x", "", ""},
		{"ESSAY", "Tell us", "", "", "", ""},
	})

	tests := []cliTest{
		{name: "no args", args: []string{"importquestions"}, wantErr: errHelp},
		{name: "no file", args: []string{"importquestions", "-test", tst.ID}, wantErr: errHelp},
		{name: "unknown test", args: []string{"importquestions", "-test", uuid.NewString(), "-file", valid}, wantErr: assessment.ErrNotFound},
		{name: "missing file", args: []string{"importquestions", "-test", tst.ID, "-file", filepath.Join(dir, "nope.xlsx")}, wantErrStr: "opening workbook"},
		{name: "invalid rows", args: []string{"importquestions", "-test", tst.ID, "-file", invalid}, wantErrStr: "row 2: invalid correct choice"},
		{name: "import", args: []string{"importquestions", "-test", tst.ID, "-file", valid}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	questions, err := testRepo.ListQuestions(context.Background(), tst.ID)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, "2 + 2 = ?", questions[1].Text)
	assert.Equal(t, []int{1}, questions[1].CorrectChoices)
	assert.Equal(t, 2, questions[1].Points)
	assert.Equal(t, assessment.KindShortAnswer, questions[2].Kind)
	assert.Equal(t, []string{"Astana", "Nur-Sultan"}, questions[2].AcceptedAnswers)
}

func Test_commandLine_exportResults(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	dir := t.TempDir()

	tutor := testutil.CreateUser(t, usrRepo, "Tutor", "tutor", "tutor@test.cd", "mdr", []string{user.RoleTutor}, true)
	student := testutil.CreateUser(t, usrRepo, "Aruzhan", "aruzhan", "aruzhan@test.cd", "mdr", []string{user.RoleStudent}, true)
	crs, _ := testutil.CreateCourse(t, courseRepo, "Maths", tutor.ID, course.StatusActive, 0)
	tst, _ := testutil.CreateTest(t, testRepo, crs.ID, "Mock 1", assessment.StatusActive, time.Hour, 2, 0, 1)

	started := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Second)
	submitted := started.Add(20 * time.Minute)
	newAttempt := func(status string, score int, submittedAt *time.Time) {
		_, err := attemptRepo.Create(ctx, attempt.Attempt{
			ID:               uuid.NewString(),
			TestID:           tst.ID,
			StudentID:        student.ID,
			Status:           status,
			Answers:          assessment.Answers{},
			DurationSeconds:  3600,
			StartedAt:        started,
			SubmittedAt:      submittedAt,
			Score:            score,
			MaxScore:         2,
			Percent:          float64(score) * 50,
			Passed:           score >= 1,
			TimeSpentSeconds: 1200,
			CreatedAt:        started,
			UpdatedAt:        started,
		})
		require.NoError(t, err)
	}
	newAttempt(attempt.StatusSubmitted, 2, &submitted)
	newAttempt(attempt.StatusRunning, 0, nil)

	out := filepath.Join(dir, "results.xlsx")
	tests := []cliTest{
		{name: "no args", args: []string{"exportresults"}, wantErr: errHelp},
		{name: "no file", args: []string{"exportresults", "-test", tst.ID}, wantErr: errHelp},
		{name: "unknown test", args: []string{"exportresults", "-test", uuid.NewString(), "-file", out}, wantErr: assessment.ErrNotFound},
		{name: "invalid email", args: []string{"exportresults", "-test", tst.ID, "-file", out, "-email", "lol"}, wantErrStr: "invalid email"},
		{name: "export", args: []string{"exportresults", "-test", tst.ID, "-file", out}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2) // header + the submitted attempt
	assert.Equal(t, "Aruzhan", rows[1][0])
	assert.Equal(t, "aruzhan@test.cd", rows[1][1])
	assert.Equal(t, submitted.Format(time.RFC3339), rows[1][4])
	assert.Equal(t, "2", rows[1][6])
	assert.Equal(t, "yes", rows[1][9])
}

func Test_commandLine_exportResults_email(t *testing.T) {
	cli := setup(t)

	tutor := testutil.CreateUser(t, usrRepo, "Tutor", "tutor", "tutor@test.cd", "mdr", []string{user.RoleTutor}, true)
	crs, _ := testutil.CreateCourse(t, courseRepo, "Maths", tutor.ID, course.StatusActive, 0)
	tst, _ := testutil.CreateTest(t, testRepo, crs.ID, "Mock 1", assessment.StatusActive, time.Hour, 1, 0)

	out := filepath.Join(t.TempDir(), "results.xlsx")
	err := cli.run([]string{"admin", "exportresults", "-test", tst.ID, "-file", out, "-email", "tutor@test.cd"})
	require.NoError(t, err)

	sent := mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "results_export", sent[0].TemplateName)
	assert.Equal(t, "tutor@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, `"Mock 1" (0 submitted attempts)`)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "results.xlsx", sent[0].Attachments[0].Filename)
	assert.Equal(t, xlsxContentType, sent[0].Attachments[0].ContentType)
}
