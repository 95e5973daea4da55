package user

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user", nil)
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists if another user (not in excludedIDs) holds them.
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...int) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsers(ctx context.Context, ids ...int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclIDs ...int) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclIDs...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering...)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Update applies a validated UpdateUser on top of the stored user.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.Roles = uu.Roles
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	usr.UpdatedAt = time.Now().UTC()
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteUsers(ctx, ids...)
}
