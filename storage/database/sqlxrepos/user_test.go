package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database/sqlxrepos"
	"github.com/saidstrong/nuet-prep-academy-sub001/testutil"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := sqlxrepos.NewUserRepository(testutil.PrepareDB(t))

	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	admin := testutil.CreateUser(t, repo, "Aigerim Admin", "aigerim", "aigerim@test.kz", "pwd", []string{user.RoleAdminOwner}, true, t0)
	tutor := testutil.CreateUser(t, repo, "Timur Tutor", "timur", "timur@test.kz", "pwd", []string{user.RoleTutor}, true, t0.Add(time.Hour))
	student := testutil.CreateUser(t, repo, "Saule Student", "", "saule@test.kz", "pwd", []string{user.RoleStudent}, false, t0.Add(2*time.Hour))

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetByID(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, admin.Name, got.Name)
		assert.Equal(t, []string{user.RoleAdminOwner}, got.Roles)
		assert.NoError(t, got.CheckPassword("pwd"))
		assert.Nil(t, got.LastLogin)

		got, err = repo.GetByUsernameOrEmail(ctx, "saule@test.kz")
		require.NoError(t, err)
		assert.Equal(t, student.ID, got.ID)
		assert.Equal(t, "", got.Username)

		_, err = repo.GetByUsername(ctx, "nobody")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
		_, err = repo.GetByEmail(ctx, "")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUniqueness(ctx, "timur", "new@test.kz"))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "new", "timur@test.kz"))
		assert.NoError(t, repo.CheckUniqueness(ctx, "timur", "timur@test.kz", tutor))
		// several users without username
		assert.NoError(t, repo.CheckUniqueness(ctx, "", "other@test.kz"))

		dup := tutor
		dup.ID = "dup"
		_, err := repo.Create(ctx, dup)
		assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	})

	t.Run("query", func(t *testing.T) {
		isActive := false
		tests := []struct {
			name     string
			filter   *user.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all, newest first", filter: nil, want: []string{student.ID, tutor.ID, admin.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "TIMUR"}, want: []string{tutor.ID}},
			{name: "search wildcard is literal", filter: &user.QueryFilter{Search: "%"}, want: []string{}},
			{name: "role prefix", filter: &user.QueryFilter{Roles: []string{"admin"}}, want: []string{admin.ID}},
			{name: "roles", filter: &user.QueryFilter{Roles: []string{"tutor", "student"}}, want: []string{student.ID, tutor.ID}},
			{name: "inactive", filter: &user.QueryFilter{IsActive: &isActive}, want: []string{student.ID}},
			{
				name:   "created range",
				filter: &user.QueryFilter{CreatedFrom: t0.Add(30 * time.Minute), CreatedTo: t0.Add(90 * time.Minute)},
				want:   []string{tutor.ID},
			},
			{
				name:     "ordering",
				ordering: []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "password_hash"}},
				want:     []string{admin.ID, student.ID, tutor.ID},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users, err := repo.Query(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				ids := make([]string, 0, len(users))
				for _, u := range users {
					ids = append(ids, u.ID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		now := time.Now().UTC()
		usr := tutor
		usr.Roles = []string{user.RoleTutor, user.RoleStudent}
		usr.LastLogin = &now
		_, err := repo.Update(ctx, usr)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, tutor.ID)
		require.NoError(t, err)
		assert.Equal(t, usr.Roles, got.Roles)
		require.NotNil(t, got.LastLogin)
		assert.True(t, now.Equal(*got.LastLogin))

		clash := got
		clash.Email = admin.Email
		_, err = repo.Update(ctx, clash)
		assert.Equal(t, user.ErrEmailExists, errors.Cause(err))

		require.NoError(t, repo.Delete(ctx, tutor.ID, student.ID))
		_, err = repo.GetByID(ctx, tutor.ID)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))

		_, err = repo.Update(ctx, usr)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}
