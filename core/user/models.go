package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/bursar/core"
)

// Roles
const (
	RoleAdmin   = "admin"   // manages staff, settings & everything below
	RoleBursar  = "bursar"  // records payments, issues receipts
	RoleAuditor = "auditor" // read-only
)

var (
	AllRoles     = []string{RoleAdmin, RoleBursar, RoleAuditor}
	WriterRoles  = []string{RoleAdmin, RoleBursar}
	ReaderRoles  = AllRoles
	AuditorRoles = []string{RoleAdmin, RoleAuditor}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleBursar:  20,
		RoleAuditor: 10,
	}

	Roles = []Role{
		{Name: "Auditor", Value: RoleAuditor},
		{Name: "Bursar", Value: RoleBursar},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasAnyRole(roles ...string) bool {
	return u.Principal().HasAnyRole(roles...)
}

func (u *User) IsAdmin() bool {
	return u.HasAnyRole(RoleAdmin)
}

// Principal is the request-scoped identity of the User.
func (u *User) Principal() core.Principal {
	return core.Principal{UserID: u.ID, Username: u.Username, Email: u.Email, Roles: u.Roles}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"required,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

// Validate fills unset fields from origUsr before validating.
func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if uu.IsActive == nil {
		uu.IsActive = &origUsr.IsActive
	}
	if uu.Roles == nil {
		uu.Roles = origUsr.Roles
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr.ID)
}

type GetFilter struct {
	ID              int
	UsernameOrEmail string
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
