// Package tests runs the API against a real (in-memory) database.
package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/saidstrong/nuet-prep-academy-sub001/apps/api/echo"
	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/enrollment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/gamification"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	appfs "github.com/saidstrong/nuet-prep-academy-sub001/fs"
	emailsvc "github.com/saidstrong/nuet-prep-academy-sub001/services/email"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database/sqlxrepos"
	"github.com/saidstrong/nuet-prep-academy-sub001/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	conf        *core.Config
	server      *echoapi.Server
	mailSvc     *emailsvc.ConsoleServiceMock
	usrRepo     user.Repository
	courseRepo  course.Repository
	testRepo    assessment.Repository
	enrollRepo  enrollment.Repository
	attemptRepo attempt.Repository
}

// newTestApp wires the whole API over a fresh database.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := core.NewTestConfig()
	logger := testutil.NopLogger{}
	db := testutil.PrepareDB(t)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, appfs.FS, logger)

	app := &testApp{
		conf:        conf,
		mailSvc:     emailsvc.NewConsoleServiceMock(conf, logger),
		usrRepo:     sqlxrepos.NewUserRepository(db),
		courseRepo:  sqlxrepos.NewCourseRepository(db),
		testRepo:    sqlxrepos.NewAssessmentRepository(db),
		enrollRepo:  sqlxrepos.NewEnrollmentRepository(db),
		attemptRepo: sqlxrepos.NewAttemptRepository(db),
	}

	usrSvc := user.NewService(app.usrRepo)
	courseSvc := course.NewService(app.courseRepo, usrSvc)
	enrollSvc := enrollment.NewService(app.enrollRepo, app.courseRepo, usrSvc, app.mailSvc, logger)
	testSvc := assessment.NewService(app.testRepo, courseSvc)
	attemptSvc := attempt.NewService(conf, app.attemptRepo, testSvc, enrollSvc, usrSvc, app.mailSvc, logger)
	gamiSvc := gamification.NewService(conf, sqlxrepos.NewGamificationRepository(db), usrSvc)

	app.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		CourseSvc:       courseSvc,
		EnrollmentSvc:   enrollSvc,
		AssessmentSvc:   testSvc,
		AttemptSvc:      attemptSvc,
		GamificationSvc: gamiSvc,
	})
	return app
}

// sentTemplates lists the template names of the emails sent so far, to the given address only when set.
func (app *testApp) sentTemplates(to ...string) []string {
	var names []string
	for _, msg := range app.mailSvc.Sent() {
		if len(to) > 0 && (len(msg.To) == 0 || msg.To[0].Address != to[0]) {
			continue
		}
		names = append(names, msg.TemplateName)
	}
	return names
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	require.NoError(t, err)
	return token
}

// do serves the request and returns the recorder.
func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
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

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	require.NoError(t, err)
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
