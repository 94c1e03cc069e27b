package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/noah-isme/course-registry/internal/models"
	"github.com/noah-isme/course-registry/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

var commands = map[string]bool{
	"schema":          true,
	"createuser":      true,
	"createsuperuser": true,
	"setpassword":     true,
	"activate":        true,
	"deactivate":      true,
	"course":          true,
	"registrations":   true,
	"reminders":       true,
}

// isCommand reports whether name is a subcommand run understands.
func isCommand(name string) bool {
	return commands[name]
}

type accountManager interface {
	CreateUser(ctx context.Context, email string, password *string, fields service.UserFields) (*models.User, error)
	CreateSuperuser(ctx context.Context, email string, password *string, fields service.UserFields) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetPassword(ctx context.Context, id string, password *string) error
	SetActive(ctx context.Context, id string, active bool) error
}

type reminderScheduler interface {
	DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]models.ClassSession, error)
}

type reminderDispatcher interface {
	Dispatch(ctx context.Context, now time.Time, window time.Duration) (service.DispatchResult, error)
}

type courseLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Course, error)
}

type registrationLister interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error)
}

type commandLine struct {
	accounts      accountManager
	sessions      reminderScheduler
	dispatcher    reminderDispatcher
	courses       courseLookup
	registrations registrationLister
	ensureSchema  func(ctx context.Context) error
	logger        *zap.Logger
	out           io.Writer
	now           func() time.Time
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  schema - create the registry tables if they do not exist")
	fmt.Fprintln(cli.out, "  createuser -email EMAIL -phone PHONE -mat-no MATNO [-role ROLE] [-no-password] - create an account")
	fmt.Fprintln(cli.out, "  createsuperuser -email EMAIL -phone PHONE -mat-no MATNO [-no-password] - create an admin account")
	fmt.Fprintln(cli.out, "  setpassword -email EMAIL [-unusable] - set or disable a user's password")
	fmt.Fprintln(cli.out, "  activate -email EMAIL - allow a user to log in")
	fmt.Fprintln(cli.out, "  deactivate -email EMAIL - block a user from logging in")
	fmt.Fprintln(cli.out, "  course -code CODE - show a course")
	fmt.Fprintln(cli.out, "  registrations [-student EMAIL] [-course CODE] - export course registrations as CSV")
	fmt.Fprintln(cli.out, "  reminders [-window DURATION] [-mark] - list or send class session reminders")
}

type accountFlags struct {
	email      *string
	phone      *string
	matNo      *string
	firstName  *string
	lastName   *string
	role       *string
	noPassword *bool
}

func newAccountFlagSet(name string, withRole bool) (*flag.FlagSet, accountFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := accountFlags{
		email:      fs.String("email", "", "The user's email. The password will be prompted next."),
		phone:      fs.String("phone", "", "The user's phone number."),
		matNo:      fs.String("mat-no", "", "The user's matriculation number."),
		firstName:  fs.String("first-name", "", "The user's first name."),
		lastName:   fs.String("last-name", "", "The user's last name."),
		noPassword: fs.Bool("no-password", false, "Create the account without a usable password."),
	}
	if withRole {
		f.role = fs.String("role", string(models.RoleStudent), "One of student, coordinator or admin.")
	}
	return fs, f
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createUserCmd, createUserFlags := newAccountFlagSet("createuser", true)
	createSuperuserCmd, createSuperuserFlags := newAccountFlagSet("createsuperuser", false)

	setPasswordCmd := flag.NewFlagSet("setpassword", flag.ContinueOnError)
	setPasswordEmail := setPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")
	setPasswordUnusable := setPasswordCmd.Bool("unusable", false, "Disable password login for the user.")

	activateCmd := flag.NewFlagSet("activate", flag.ContinueOnError)
	activateEmail := activateCmd.String("email", "", "The user's email.")

	deactivateCmd := flag.NewFlagSet("deactivate", flag.ContinueOnError)
	deactivateEmail := deactivateCmd.String("email", "", "The user's email.")

	courseCmd := flag.NewFlagSet("course", flag.ContinueOnError)
	courseCode := courseCmd.String("code", "", "The course code.")

	registrationsCmd := flag.NewFlagSet("registrations", flag.ContinueOnError)
	registrationsStudent := registrationsCmd.String("student", "", "Only registrations of the student with this email.")
	registrationsCourse := registrationsCmd.String("course", "", "Only registrations for this course code.")

	remindersCmd := flag.NewFlagSet("reminders", flag.ContinueOnError)
	remindersWindow := remindersCmd.Duration("window", 0, "How far ahead to look. Defaults to REMINDER_WINDOW.")
	remindersMark := remindersCmd.Bool("mark", false, "Send the reminders and mark the sessions as reminded.")

	for _, fs := range []*flag.FlagSet{createUserCmd, createSuperuserCmd, setPasswordCmd, activateCmd, deactivateCmd, courseCmd, registrationsCmd, remindersCmd} {
		fs.SetOutput(cli.out)
	}

	ctx := context.Background()

	switch args[1] {
	case "schema":
		if err := cli.ensureSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "schema is up to date")
		return nil
	case "createuser":
		if err := createUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.createAccount(ctx, createUserCmd, createUserFlags, false)
	case "createsuperuser":
		if err := createSuperuserCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.createAccount(ctx, createSuperuserCmd, createSuperuserFlags, true)
	case "setpassword":
		if err := setPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setPasswordEmail == "" {
			setPasswordCmd.Usage()
			return errHelp
		}
		var pwd *string
		if !*setPasswordUnusable {
			p, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if p == "" {
				setPasswordCmd.Usage()
				return errHelp
			}
			pwd = &p
		}
		return cli.setPassword(ctx, *setPasswordEmail, pwd)
	case "activate":
		if err := activateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *activateEmail == "" {
			activateCmd.Usage()
			return errHelp
		}
		return cli.setActive(ctx, *activateEmail, true)
	case "deactivate":
		if err := deactivateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *deactivateEmail == "" {
			deactivateCmd.Usage()
			return errHelp
		}
		return cli.setActive(ctx, *deactivateEmail, false)
	case "course":
		if err := courseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *courseCode == "" {
			courseCmd.Usage()
			return errHelp
		}
		return cli.showCourse(ctx, *courseCode)
	case "registrations":
		if err := registrationsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.exportRegistrations(ctx, *registrationsStudent, *registrationsCourse)
	case "reminders":
		if err := remindersCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.reminders(ctx, *remindersWindow, *remindersMark)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
