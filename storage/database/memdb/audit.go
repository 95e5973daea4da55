package memdb

import (
	"context"

	"github.com/trezcool/bursar/core/audit"
)

type auditRepository struct {
	db *table[audit.AuditLog]
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db.auditLogs}
}

func (repo *auditRepository) InsertAuditLog(_ context.Context, l audit.AuditLog) (audit.AuditLog, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	id := repo.db.nextID()
	l.ID = int64(id)
	repo.db.rows[id] = l
	return l, nil
}

func (repo *auditRepository) QueryAuditLogs(_ context.Context, filter audit.QueryFilter) ([]audit.AuditLog, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	logs := repo.db.filter(func(l audit.AuditLog) bool {
		switch {
		case filter.Entity != "" && l.Entity != filter.Entity,
			filter.EntityID != "" && l.EntityID != filter.EntityID,
			filter.UserID != 0 && l.UserID.Int != filter.UserID:
			return false
		}
		return true
	})
	reverse(logs)
	return logs, nil
}
