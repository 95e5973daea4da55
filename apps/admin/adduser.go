package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/user"
)

// addUser updates or creates an active user.User holding role.
func (cli *commandLine) addUser(name, uname, email, pwd, role string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if user.RolePriority(role) == 0 {
		return fmt.Errorf("unknown role %q", role)
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	exists := err == nil
	if err != nil && !core.IsNotFound(err) {
		return err
	}
	if !exists {
		if err := cli.usrRepo.CheckUniqueness(ctx, uname, email); err != nil {
			return err
		}
		usr = user.User{Username: uname, Roles: []string{}, CreatedAt: time.Now().UTC()}
	}

	if name = core.CleanString(name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = uname
	}
	if email != "" {
		usr.Email = email
	}
	if !usr.HasAnyRole(role) {
		usr.Roles = append(usr.Roles, role)
	}
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
