package memdb

import (
	"context"
	"strings"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/user"
)

type userRepository struct {
	db *table[user.User]
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.users}
}

var userComparators = comparators[user.User]{
	"name":       func(a, b user.User) int { return strings.Compare(a.Name, b.Name) },
	"username":   func(a, b user.User) int { return strings.Compare(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return strings.Compare(a.Email, b.Email) },
	"created_at": func(a, b user.User) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"last_login": func(a, b user.User) int { return compareTimes(a.LastLogin.Time, b.LastLogin.Time) },
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedIDs ...int) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[int]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, usr := range repo.db.all() {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = repo.db.nextID()
	repo.db.rows[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.rows[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.UsernameOrEmail != "" {
		for _, usr := range repo.db.all() {
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	users := repo.db.filter(func(u user.User) bool {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			return false
		}
		if len(filter.Roles) > 0 && !u.HasAnyRole(filter.Roles...) {
			return false
		}
		return filter.IsActive == nil || u.IsActive == *filter.IsActive
	})
	sortRows(users, userComparators, ordering)
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.rows[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) DeleteUsers(_ context.Context, ids ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.rows, id)
	}
	return nil
}
