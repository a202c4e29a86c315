package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

// addUser updates or creates an active user. An existing user is matched by username, then by email.
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if err := cli.validate.Var(email, "email"); err != nil {
		return errors.Errorf("invalid email %q", email)
	}

	usr, err := cli.usrRepo.GetByUsernameOrEmail(ctx, uname)
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetByUsernameOrEmail(ctx, email)
	}
	exists := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	if !exists {
		usr = user.User{
			ID:        uuid.NewString(),
			Name:      uname,
			Roles:     []string{},
			CreatedAt: now,
		}
	}
	usr.Username = uname
	usr.Email = email
	usr.IsActive = true
	usr.UpdatedAt = now
	if isAdmin {
		usr.Roles = []string{user.RoleAdminOwner}
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.Update(ctx, usr)
	} else {
		_, err = cli.usrRepo.Create(ctx, usr)
	}
	if err != nil {
		return errors.Wrap(err, "saving user")
	}
	cli.logger.Info("user saved: " + usr.Username)
	return nil
}
