package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/user"
)

type (
	userRepository struct {
		db core.DB
	}

	userRow struct {
		ID           int            `db:"id"`
		Name         string         `db:"name"`
		Username     string         `db:"username"`
		Email        string         `db:"email"`
		IsActive     bool           `db:"is_active"`
		Roles        pq.StringArray `db:"roles"`
		PasswordHash []byte         `db:"password_hash"`
		CreatedAt    time.Time      `db:"created_at"`
		UpdatedAt    time.Time      `db:"updated_at"`
		LastLogin    null.Time      `db:"last_login"`
	}
)

var (
	_ user.Repository = (*userRepository)(nil) // interface compliance check

	userColumns = []string{"id", "name", "username", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login"}
	userOrderBy = map[string]bool{"name": true, "username": true, "email": true, "created_at": true, "last_login": true}
)

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{db: db}
}

func (r userRow) toUser() user.User {
	roles := []string(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin,
	}
}

func userValues(usr user.User) map[string]interface{} {
	return map[string]interface{}{
		"name":          usr.Name,
		"username":      usr.Username,
		"email":         usr.Email,
		"is_active":     usr.IsActive,
		"roles":         pq.StringArray(usr.Roles),
		"password_hash": usr.PasswordHash,
		"created_at":    usr.CreatedAt.UTC(),
		"updated_at":    usr.UpdatedAt.UTC(),
		"last_login":    usr.LastLogin,
	}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...int) error {
	cond := sq.Or{sq.Eq{"username": username}}
	if email != "" {
		cond = append(cond, sq.Eq{"email": email})
	}
	where := sq.And{cond}
	if len(excludedIDs) > 0 {
		where = append(where, sq.NotEq{"id": excludedIDs})
	}

	var taken []userRow
	q := psql.Select("username", "email").From("users").Where(where).Limit(2)
	if err := selectAll(ctx, repo.db, &taken, q); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, u := range taken {
		if u.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	var row userRow
	q := psql.Insert("users").SetMap(userValues(usr)).Suffix(returning(userColumns))
	if err := get(ctx, repo.db, &row, q); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := psql.Select(userColumns...).From("users")
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.UsernameOrEmail != "":
		q = q.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := get(ctx, repo.db, &row, q.Limit(1)); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	q := psql.Select(userColumns...).From("users")
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
	}
	if len(filter.Roles) > 0 {
		q = q.Where("roles && ?", pq.StringArray(filter.Roles))
	}
	if filter.IsActive != nil {
		q = q.Where(sq.Eq{"is_active": *filter.IsActive})
	}
	q = q.OrderBy(orderBy(ordering, userOrderBy, "id ASC")...)

	var rows []userRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	values := userValues(usr)
	delete(values, "created_at")

	var row userRow
	q := psql.Update("users").SetMap(values).Where(sq.Eq{"id": usr.ID}).Suffix(returning(userColumns))
	if err := get(ctx, repo.db, &row, q); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) DeleteUsers(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := execute(ctx, repo.db, psql.Delete("users").Where(sq.Eq{"id": ids}))
	if code, constraint := pqViolation(err); code == codeForeignKeyViolation {
		// users who recorded payments or receipts are deactivated, never deleted
		return core.NewConflictError(constraint, err)
	}
	return errors.Wrap(err, "deleting users")
}
