package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/audit"
)

type (
	auditRepository struct {
		db core.DB
	}

	auditLogRow struct {
		ID        int64     `db:"id"`
		UserID    null.Int  `db:"user_id"`
		Action    string    `db:"action"`
		Entity    string    `db:"entity"`
		EntityID  string    `db:"entity_id"`
		Details   string    `db:"details"`
		CreatedAt time.Time `db:"created_at"`
	}
)

var (
	_ audit.Repository = (*auditRepository)(nil) // interface compliance check

	auditLogColumns = []string{"id", "user_id", "action", "entity", "entity_id", "details", "created_at"}
)

func NewAuditRepository(db core.DB) audit.Repository {
	return &auditRepository{db: db}
}

func (r auditLogRow) toAuditLog() audit.AuditLog {
	return audit.AuditLog{
		ID:        r.ID,
		UserID:    r.UserID,
		Action:    r.Action,
		Entity:    r.Entity,
		EntityID:  r.EntityID,
		Details:   r.Details,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (repo *auditRepository) InsertAuditLog(ctx context.Context, l audit.AuditLog) (audit.AuditLog, error) {
	q := psql.Insert("audit_logs").SetMap(map[string]interface{}{
		"user_id":    l.UserID,
		"action":     l.Action,
		"entity":     l.Entity,
		"entity_id":  l.EntityID,
		"details":    l.Details,
		"created_at": l.CreatedAt.UTC(),
	}).Suffix(returning(auditLogColumns))

	var row auditLogRow
	if err := get(ctx, repo.db, &row, q); err != nil {
		return audit.AuditLog{}, errors.Wrap(err, "inserting audit log")
	}
	return row.toAuditLog(), nil
}

func (repo *auditRepository) QueryAuditLogs(ctx context.Context, filter audit.QueryFilter) ([]audit.AuditLog, error) {
	where := sq.Eq{}
	if filter.Entity != "" {
		where["entity"] = filter.Entity
	}
	if filter.EntityID != "" {
		where["entity_id"] = filter.EntityID
	}
	if filter.UserID != 0 {
		where["user_id"] = filter.UserID
	}
	q := psql.Select(auditLogColumns...).From("audit_logs").Where(where).OrderBy("created_at DESC", "id DESC")

	var rows []auditLogRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying audit logs")
	}
	logs := make([]audit.AuditLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, r.toAuditLog())
	}
	return logs, nil
}
