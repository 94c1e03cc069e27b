package models

import "time"

// Role is the access tier of a user. Privileges are derived from the role rather
// than stored independently.
type Role string

const (
	RoleStudent     Role = "student"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCoordinator, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role grants administrative console access.
// Coordinators and admins qualify, and only they may lecture a course.
func (r Role) IsStaff() bool {
	return r == RoleCoordinator || r == RoleAdmin
}

// IsSuperuser reports whether the role carries every permission.
func (r Role) IsSuperuser() bool {
	return r == RoleAdmin
}

// User represents an account stored in the users table. Authentication material
// lives in Credential, joined by UserID.
type User struct {
	ID          string    `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	MiddleName  *string   `db:"middle_name" json:"middle_name,omitempty"`
	Department  string    `db:"department" json:"department"`
	Level       string    `db:"level" json:"level"`
	Faculty     string    `db:"faculty" json:"faculty"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	MatNo       string    `db:"mat_no" json:"mat_no"`
	Role        Role      `db:"role" json:"role"`
	Active      bool      `db:"is_active" json:"is_active"`
	Staff       bool      `db:"is_staff" json:"is_staff"`
	Superuser   bool      `db:"is_superuser" json:"is_superuser"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SyncPrivileges recomputes the persisted privilege columns from Role.
func (u *User) SyncPrivileges() {
	u.Staff = u.Role.IsStaff()
	u.Superuser = u.Role.IsSuperuser()
}

// FullName joins first, middle and last names.
func (u User) FullName() string {
	name := u.FirstName
	if u.MiddleName != nil && *u.MiddleName != "" {
		name += " " + *u.MiddleName
	}
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

func (u User) String() string {
	return u.Email
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *Role
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page and size the same way repositories do.
func NewPagination(page, size, total int) *Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &Pagination{Page: page, PageSize: size, TotalCount: total}
}
