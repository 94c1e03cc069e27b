package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registry/internal/models"
	"github.com/noah-isme/course-registry/internal/service"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

type fakeAccounts struct {
	users     map[string]*models.User
	passwords map[string]*string
}

func (f *fakeAccounts) CreateUser(ctx context.Context, email string, password *string, fields service.UserFields) (*models.User, error) {
	email = service.NormalizeEmail(email)
	if _, ok := f.users[email]; ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}
	role := fields.Role
	if role == "" {
		role = models.RoleStudent
	}
	usr := &models.User{ID: fmt.Sprintf("u%d", len(f.users)+1), Email: email, MatNo: fields.MatNo, Role: role, Active: true}
	usr.SyncPrivileges()
	f.users[email] = usr
	f.passwords[usr.ID] = password
	return usr, nil
}

func (f *fakeAccounts) CreateSuperuser(ctx context.Context, email string, password *string, fields service.UserFields) (*models.User, error) {
	if fields.Role == "" {
		fields.Role = models.RoleAdmin
	}
	return f.CreateUser(ctx, email, password, fields)
}

func (f *fakeAccounts) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	usr, ok := f.users[service.NormalizeEmail(email)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return usr, nil
}

func (f *fakeAccounts) SetPassword(ctx context.Context, id string, password *string) error {
	f.passwords[id] = password
	return nil
}

func (f *fakeAccounts) SetActive(ctx context.Context, id string, active bool) error {
	for _, usr := range f.users {
		if usr.ID == id {
			usr.Active = active
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

type fakeSessions struct {
	due    []models.ClassSession
	marked map[string]bool
	window time.Duration
}

func (f *fakeSessions) DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]models.ClassSession, error) {
	f.window = window
	var out []models.ClassSession
	for _, s := range f.due {
		if !f.marked[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Dispatch(ctx context.Context, now time.Time, window time.Duration) (service.DispatchResult, error) {
	due, _ := f.DueReminders(ctx, now, window)
	for _, s := range due {
		f.marked[s.ID] = true
	}
	return service.DispatchResult{Due: len(due), Sent: len(due)}, nil
}

type fakeRegistrations struct {
	items   []models.RegistrationDetail
	filters []models.RegistrationFilter
}

func (f *fakeRegistrations) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	f.filters = append(f.filters, filter)
	var matched []models.RegistrationDetail
	for _, item := range f.items {
		if filter.StudentID != "" && item.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && item.CourseID != filter.CourseID {
			continue
		}
		matched = append(matched, item)
	}
	pagination := models.NewPagination(filter.Page, filter.PageSize, len(matched))
	start := (pagination.Page - 1) * pagination.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pagination.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], pagination, nil
}

type fakeCourses struct {
	courses map[string]*models.Course
}

func (f *fakeCourses) GetByCode(ctx context.Context, code string) (*models.Course, error) {
	c, ok := f.courses[service.NormalizeCourseCode(code)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return c, nil
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
	wantOut    string
}

func setup(t *testing.T) (*commandLine, *fakeAccounts, *fakeSessions, *bytes.Buffer) {
	cli, accounts, sessions, _, out := setupWithRegistrations(t)
	return cli, accounts, sessions, out
}

func setupWithRegistrations(t *testing.T) (*commandLine, *fakeAccounts, *fakeSessions, *fakeRegistrations, *bytes.Buffer) {
	t.Helper()
	accounts := &fakeAccounts{users: map[string]*models.User{}, passwords: map[string]*string{}}
	sessions := &fakeSessions{marked: map[string]bool{}}
	courses := &fakeCourses{courses: map[string]*models.Course{
		"CSC101": {ID: "c1", Code: "CSC101", Title: "Intro to Computing", Credits: 3, Level: "100"},
	}}
	registrations := &fakeRegistrations{}
	out := &bytes.Buffer{}
	cli := &commandLine{
		accounts:      accounts,
		sessions:      sessions,
		dispatcher:    sessions,
		courses:       courses,
		registrations: registrations,
		ensureSchema:  func(ctx context.Context) error { return nil },
		logger:        zap.NewNop(),
		out:           out,
		now:           func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) },
	}
	return cli, accounts, sessions, registrations, out
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	original := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = original })

	for _, tt := range tests {
		args := append([]string{"registrar"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			readPasswordFunc = func(fd int) ([]byte, error) {
				return []byte(tt.pwd), nil
			}
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr), "cli.run() error = %v, wantErr %v", err, tt.wantErr)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				require.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, _, out := setup(t)
	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "schema", args: []string{"schema"}, wantOut: "schema is up to date"},
	})
}

func Test_commandLine_schemaFailure(t *testing.T) {
	cli, _, _, _ := setup(t)
	cli.ensureSchema = func(ctx context.Context) error { return errors.New("connection refused") }
	err := cli.run([]string{"registrar", "schema"})
	require.Error(t, err)
	assert.Equal(t, "connection refused", err.Error())
}

func Test_commandLine_createuser(t *testing.T) {
	cli, accounts, _, out := setup(t)
	runCLITests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"createuser"}, wantErr: errHelp},
		{name: "missing mat no", args: []string{"createuser", "-email", "a@x.com", "-phone", "1"}, wantErr: errHelp},
		{name: "empty password", args: []string{"createuser", "-email", "a@x.com", "-phone", "1", "-mat-no", "M1"}, wantErr: errHelp},
		{name: "student", args: []string{"createuser", "-email", "A@X.com", "-phone", "1", "-mat-no", "M1"}, pwd: "secret", wantOut: "created a@x.com (student)"},
		{name: "duplicate", args: []string{"createuser", "-email", "a@x.com", "-phone", "2", "-mat-no", "M2"}, pwd: "secret", wantErr: appErrors.ErrConflict},
		{name: "coordinator without password", args: []string{"createuser", "-email", "c@x.com", "-phone", "3", "-mat-no", "C1", "-role", "coordinator", "-no-password"}, wantOut: "created c@x.com (coordinator)"},
	})

	student := accounts.users["a@x.com"]
	require.NotNil(t, student)
	require.NotNil(t, accounts.passwords[student.ID])
	assert.Equal(t, "secret", *accounts.passwords[student.ID])
	assert.Nil(t, accounts.passwords[accounts.users["c@x.com"].ID])
	assert.True(t, accounts.users["c@x.com"].Staff)
}

func Test_commandLine_createsuperuser(t *testing.T) {
	cli, accounts, _, out := setup(t)
	runCLITests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"createsuperuser"}, wantErr: errHelp},
		{name: "role flag rejected", args: []string{"createsuperuser", "-role", "student"}, wantErrStr: "flag provided but not defined: -role"},
		{name: "admin", args: []string{"createsuperuser", "-email", "root@x.com", "-phone", "9", "-mat-no", "R1"}, pwd: "pwd", wantOut: "created root@x.com (admin)"},
	})

	admin := accounts.users["root@x.com"]
	require.NotNil(t, admin)
	assert.True(t, admin.Staff)
	assert.True(t, admin.Superuser)
}

func Test_commandLine_setpassword(t *testing.T) {
	cli, accounts, _, out := setup(t)
	usr, err := accounts.CreateUser(context.Background(), "a@x.com", nil, service.UserFields{MatNo: "M1"})
	require.NoError(t, err)

	runCLITests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"setpassword"}, wantErr: errHelp},
		{name: "empty password", args: []string{"setpassword", "-email", "a@x.com"}, wantErr: errHelp},
		{name: "unknown user", args: []string{"setpassword", "-email", "ghost@x.com"}, pwd: "x", wantErr: appErrors.ErrNotFound},
		{name: "set", args: []string{"setpassword", "-email", "a@x.com"}, pwd: "new-secret", wantOut: "password changed for a@x.com"},
	})
	require.NotNil(t, accounts.passwords[usr.ID])
	assert.Equal(t, "new-secret", *accounts.passwords[usr.ID])

	runCLITests(t, cli, out, []cliTest{
		{name: "unusable", args: []string{"setpassword", "-email", "a@x.com", "-unusable"}, wantOut: "password disabled for a@x.com"},
	})
	assert.Nil(t, accounts.passwords[usr.ID])
}

func Test_commandLine_activation(t *testing.T) {
	cli, accounts, _, out := setup(t)
	usr, err := accounts.CreateUser(context.Background(), "a@x.com", nil, service.UserFields{MatNo: "M1"})
	require.NoError(t, err)

	runCLITests(t, cli, out, []cliTest{
		{name: "deactivate no args", args: []string{"deactivate"}, wantErr: errHelp},
		{name: "deactivate", args: []string{"deactivate", "-email", "a@x.com"}, wantOut: "deactivated a@x.com"},
	})
	assert.False(t, usr.Active)

	runCLITests(t, cli, out, []cliTest{
		{name: "activate no args", args: []string{"activate"}, wantErr: errHelp},
		{name: "activate", args: []string{"activate", "-email", "a@x.com"}, wantOut: "activated a@x.com"},
	})
	assert.True(t, usr.Active)
}

func Test_commandLine_course(t *testing.T) {
	cli, _, _, out := setup(t)
	runCLITests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"course"}, wantErr: errHelp},
		{name: "unknown", args: []string{"course", "-code", "NOPE"}, wantErr: appErrors.ErrNotFound},
		{name: "found", args: []string{"course", "-code", "csc101"}, wantOut: "CSC101 - Intro to Computing"},
	})
}

func Test_commandLine_reminders(t *testing.T) {
	cli, _, sessions, out := setup(t)
	start := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	sessions.due = []models.ClassSession{{ID: "s1", Title: "Algebra", StartTime: start}}

	runCLITests(t, cli, out, []cliTest{
		{name: "bad window", args: []string{"reminders", "-window", "soon"}, wantErrStr: `invalid value "soon" for flag -window: parse error`},
		{name: "list", args: []string{"reminders", "-window", "2h"}, wantOut: "s1\t2026-03-01T08:30:00Z\tAlgebra"},
	})
	assert.Equal(t, 2*time.Hour, sessions.window)
	assert.False(t, sessions.marked["s1"])

	runCLITests(t, cli, out, []cliTest{
		{name: "mark", args: []string{"reminders", "-mark"}, wantOut: "due: 1, sent: 1, already sent: 0, failed: 0"},
		{name: "nothing left", args: []string{"reminders"}, wantOut: "no class sessions due a reminder"},
	})
	assert.True(t, sessions.marked["s1"])
	assert.Zero(t, sessions.window)
	assert.False(t, strings.Contains(out.String(), "Algebra"))
}

func Test_commandLine_registrations(t *testing.T) {
	cli, accounts, _, registrations, out := setupWithRegistrations(t)
	student, err := accounts.CreateUser(context.Background(), "s@x.com", nil, service.UserFields{MatNo: "M1"})
	require.NoError(t, err)
	enrolled := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		registrations.items = append(registrations.items, models.RegistrationDetail{
			Registration: models.Registration{ID: fmt.Sprintf("r%d", i), StudentID: "other", CourseID: "c2", DateEnrolled: enrolled},
		})
	}
	registrations.items = append(registrations.items, models.RegistrationDetail{
		Registration: models.Registration{ID: "mine", StudentID: student.ID, CourseID: "c1", DateEnrolled: enrolled},
		StudentMatNo: "M1", StudentEmail: "s@x.com", CourseCode: "CSC101", CourseTitle: "Intro to Computing",
	})

	runCLITests(t, cli, out, []cliTest{
		{name: "unknown student", args: []string{"registrations", "-student", "ghost@x.com"}, wantErr: appErrors.ErrNotFound},
		{name: "unknown course", args: []string{"registrations", "-course", "NOPE"}, wantErr: appErrors.ErrNotFound},
		{
			name:    "by student and course",
			args:    []string{"registrations", "-student", "s@x.com", "-course", "csc101"},
			wantOut: "id,mat_no,email,course_code,course_title,date_enrolled\nmine,M1,s@x.com,CSC101,Intro to Computing,2026-01-10T09:00:00Z\n",
		},
	})

	registrations.filters = nil
	out.Reset()
	require.NoError(t, cli.run([]string{"registrar", "registrations"}))
	assert.Len(t, registrations.filters, 2)
	assert.Equal(t, 152, strings.Count(out.String(), "\n"))
}

func Test_execute_usageWithoutConnecting(t *testing.T) {
	t.Setenv("DB_HOST", "unreachable.invalid")
	assert.True(t, errors.Is(execute([]string{"registrar"}), errHelp))
	assert.True(t, errors.Is(execute([]string{"registrar", "lol"}), errHelp))
}

func Test_commandLine_commandsAreDispatched(t *testing.T) {
	cli, _, _, _ := setup(t)
	for name := range commands {
		if name == "schema" {
			continue // takes no flags
		}
		err := cli.run([]string{"registrar", name, "-h"})
		assert.True(t, errors.Is(err, flag.ErrHelp), "%s: %v", name, err)
	}
}
