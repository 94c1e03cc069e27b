package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRolePrivileges(t *testing.T) {
	cases := []struct {
		role      Role
		staff     bool
		superuser bool
	}{
		{RoleStudent, false, false},
		{RoleCoordinator, true, false},
		{RoleAdmin, true, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			assert.True(t, tc.role.Valid())
			assert.Equal(t, tc.staff, tc.role.IsStaff())
			assert.Equal(t, tc.superuser, tc.role.IsSuperuser())

			u := User{Role: tc.role}
			u.SyncPrivileges()
			assert.Equal(t, tc.staff, u.Staff)
			assert.Equal(t, tc.superuser, u.Superuser)
		})
	}
	assert.False(t, Role("lecturer").Valid())
	assert.False(t, Role("").Valid())
}

func TestStringRepresentations(t *testing.T) {
	middle := "Ada"
	u := User{Email: "a@x.com", FirstName: "Grace", MiddleName: &middle, LastName: "Hopper"}
	assert.Equal(t, "a@x.com", u.String())
	assert.Equal(t, "Grace Ada Hopper", u.FullName())

	assert.Equal(t, "Intro lab", ClassSession{Title: "Intro lab", StartTime: time.Now()}.String())
	assert.Equal(t, "CSC101 - Intro to Computing", Course{Code: "CSC101", Title: "Intro to Computing"}.String())
	assert.Equal(t, "M1 registered course CSC101", RegistrationDetail{StudentMatNo: "M1", CourseCode: "CSC101"}.String())
}

func TestCredentialUsable(t *testing.T) {
	hash := "$2a$10$abc"
	empty := ""
	assert.True(t, Credential{PasswordHash: &hash}.Usable())
	assert.False(t, Credential{PasswordHash: &empty}.Usable())
	assert.False(t, Credential{}.Usable())
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, &Pagination{Page: 1, PageSize: 20, TotalCount: 4}, NewPagination(0, 0, 4))
	assert.Equal(t, &Pagination{Page: 3, PageSize: 50, TotalCount: 120}, NewPagination(3, 50, 120))
	assert.Equal(t, 20, NewPagination(1, 500, 0).PageSize)
}
