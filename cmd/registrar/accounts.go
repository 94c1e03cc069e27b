package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/course-registry/internal/models"
	"github.com/noah-isme/course-registry/internal/service"
)

// createAccount prompts for a password unless -no-password is set, then creates
// the user through the account service.
func (cli *commandLine) createAccount(ctx context.Context, fs *flag.FlagSet, f accountFlags, superuser bool) error {
	if *f.email == "" || *f.phone == "" || *f.matNo == "" {
		fs.Usage()
		return errHelp
	}

	var pwd *string
	if !*f.noPassword {
		p, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if p == "" {
			fs.Usage()
			return errHelp
		}
		pwd = &p
	}

	fields := service.UserFields{
		FirstName:   *f.firstName,
		LastName:    *f.lastName,
		PhoneNumber: *f.phone,
		MatNo:       *f.matNo,
	}
	if f.role != nil {
		fields.Role = models.Role(*f.role)
	}

	create := cli.accounts.CreateUser
	if superuser {
		create = cli.accounts.CreateSuperuser
	}
	usr, err := create(ctx, *f.email, pwd, fields)
	if err != nil {
		return err
	}
	cli.logger.Info("account created", zap.String("user_id", usr.ID), zap.String("role", string(usr.Role)))
	fmt.Fprintf(cli.out, "created %s (%s)\n", usr, usr.Role)
	return nil
}

func (cli *commandLine) setPassword(ctx context.Context, email string, pwd *string) error {
	usr, err := cli.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := cli.accounts.SetPassword(ctx, usr.ID, pwd); err != nil {
		return err
	}
	if pwd == nil {
		fmt.Fprintf(cli.out, "password disabled for %s\n", usr)
		return nil
	}
	fmt.Fprintf(cli.out, "password changed for %s\n", usr)
	return nil
}

func (cli *commandLine) setActive(ctx context.Context, email string, active bool) error {
	usr, err := cli.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := cli.accounts.SetActive(ctx, usr.ID, active); err != nil {
		return err
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Fprintf(cli.out, "%s %s\n", state, usr)
	return nil
}
