package tests

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/saidstrong/nuet-prep-academy-sub001/apps/api/echo"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	"github.com/saidstrong/nuet-prep-academy-sub001/testutil"
)

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)
	pwd := "Pwd-for-tests1"
	testutil.CreateUser(t, app.usrRepo, "Student", "student01", "student@test.kz", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.usrRepo, "Gone", "gone0001", "gone@test.kz", pwd, []string{user.RoleStudent}, false)

	login := func(uname, pwd string) []byte {
		return marshalObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/users/login", body: login("", ""),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/api/users/login", body: login("nobody", pwd),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login", body: login("student01", "nope"),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login", body: login("gone@test.kz", pwd),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success by username or email", func(t *testing.T) {
		for _, uname := range []string{"student01", "STUDENT@test.kz"} {
			rec := app.do(http.MethodPost, "/api/users/login", "", login(uname, pwd))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp echoapi.LoginResponse
			unmarshal(t, rec, &resp)
			require.NotEmpty(t, resp.Token)

			// the token grants access
			rec = app.do(http.MethodGet, "/api/users/me", resp.Token)
			require.Equal(t, http.StatusOK, rec.Code)
			var me user.User
			unmarshal(t, rec, &me)
			assert.Equal(t, "student01", me.Username)
			assert.NotNil(t, me.LastLogin)
		}
	})

	t.Run("token refresh", func(t *testing.T) {
		usr, err := app.usrRepo.GetByUsername(context.Background(), "student01")
		require.NoError(t, err)
		rec := app.do(http.MethodPost, "/api/users/token-refresh", app.token(t, usr))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPost, "/api/users/token-refresh", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_userApi_query(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin001", "admin@test.kz", "", []string{user.RoleAdmin}, true)
	tutor := testutil.CreateUser(t, app.usrRepo, "Tutor", "tutor001", "tutor@test.kz", "", []string{user.RoleTutor}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Student", "student01", "student@test.kz", "", []string{user.RoleStudent}, true)
	gone := testutil.CreateUser(t, app.usrRepo, "Gone", "gone0001", "gone@test.kz", "", []string{user.RoleStudent}, false)

	reload := func(usr user.User) user.User {
		usr, err := app.usrRepo.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		return usr
	}
	admin, tutor, student, gone = reload(admin), reload(tutor), reload(student), reload(gone)

	path := func(v url.Values) string { return "/api/users?" + v.Encode() }
	adminToken := app.token(t, admin)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: app.token(t, tutor),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "ordered by name", path: path(url.Values{"ordering": {"name"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshalList(t, admin, gone, student, tutor),
		},
		{
			name: "by role", path: path(url.Values{"role": {user.RoleStudent}, "ordering": {"-name"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshalList(t, student, gone),
		},
		{
			name: "inactive", path: path(url.Values{"is_active": {"false"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshalList(t, gone),
		},
		{
			name: "search", path: path(url.Values{"search": {"TUT"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshalList(t, tutor),
		},
		{
			name: "search (no match)", path: path(url.Values{"search": {"lol"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshalList(t),
		},
		{
			name: "roles", path: "/api/users/roles", token: adminToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, user.Roles),
		},
	})
}

func Test_userApi_detail(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin001", "admin@test.kz", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Student", "student01", "student@test.kz", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "student02", "other@test.kz", "", []string{user.RoleStudent}, true)
	student, err := app.usrRepo.GetByID(ctx, student.ID)
	require.NoError(t, err)

	adminToken := app.token(t, admin)
	studentToken := app.token(t, student)

	runHTTPTests(t, app, []httpTest{
		{name: "self", path: "/api/users/" + student.ID, token: studentToken, wantCode: http.StatusOK, wantData: marshalObj(t, student)},
		{name: "admin", path: "/api/users/" + student.ID, token: adminToken, wantCode: http.StatusOK, wantData: marshalObj(t, student)},
		{
			name: "someone else", path: "/api/users/" + other.ID, token: studentToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "not found"}),
		},
		{name: "unknown", path: "/api/users/unknown", token: adminToken, wantCode: http.StatusNotFound},
		{
			name: "student cannot change roles", method: http.MethodPut, path: "/api/users/" + student.ID, token: studentToken,
			body: []byte(`{"roles": ["admin:"]}`), wantCode: http.StatusForbidden,
		},
		{
			name: "student cannot delete", method: http.MethodDelete, path: "/api/users/" + other.ID, token: studentToken,
			wantCode: http.StatusForbidden,
		},
		{
			name: "admin cannot delete themselves", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden,
		},
		{
			name: "admin cannot grant a higher role", method: http.MethodPut, path: "/api/users/" + other.ID, token: adminToken,
			body:     []byte(`{"roles": ["admin:owner"]}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
	})

	t.Run("self update", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/users/"+student.ID, studentToken, []byte(`{"name": "  Renamed  "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got user.User
		unmarshal(t, rec, &got)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, student.Username, got.Username)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/users/"+other.ID, adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		_, err := app.usrRepo.GetByID(ctx, other.ID)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))

		// deleted users lose access
		rec = app.do(http.MethodGet, "/api/users/me", app.token(t, other))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_userApi_create(t *testing.T) {
	app := newTestApp(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin001", "admin@test.kz", "", []string{user.RoleAdmin}, true)
	testutil.CreateUser(t, app.usrRepo, "Taken", "taken001", "taken@test.kz", "", nil, true)
	adminToken := app.token(t, admin)

	newUser := func(uname, email, pwd string, roles ...string) []byte {
		return marshalObj(t, user.NewUser{Name: "New User", Username: uname, Email: email, Password: pwd, PasswordConfirm: pwd, Roles: roles})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "weak password", method: http.MethodPost, path: "/api/users", token: adminToken,
			body: newUser("newuser01", "", "12345678"), wantCode: http.StatusBadRequest,
		},
		{
			name: "username taken", method: http.MethodPost, path: "/api/users", token: adminToken,
			body:     newUser("TAKEN001", "", "Pwd-for-tests1"),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "role above own", method: http.MethodPost, path: "/api/users", token: adminToken,
			body: newUser("newuser01", "", "Pwd-for-tests1", user.RoleAdminOwner), wantCode: http.StatusBadRequest,
		},
	})

	rec := app.do(http.MethodPost, "/api/users", adminToken, newUser("tutor0001", "tutor@test.kz", "Pwd-for-tests1", user.RoleTutor))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got user.User
	unmarshal(t, rec, &got)
	assert.True(t, got.IsTutor())
	assert.True(t, got.IsActive)
	assert.NoError(t, func() error {
		usr, err := app.usrRepo.GetByID(context.Background(), got.ID)
		if err != nil {
			return err
		}
		return usr.CheckPassword("Pwd-for-tests1")
	}())
}
