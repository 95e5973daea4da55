package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
)

// Actions
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionGenerate   = "generate"
	ActionRegenerate = "regenerate"
	ActionEmail      = "email"
)

// Entities
const (
	EntityPayment = "payment"
	EntityReceipt = "receipt"
	EntitySetting = "setting"
)

type AuditLog struct {
	ID        int64     `json:"id"`
	UserID    null.Int  `json:"user_id"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Details   string    `json:"details"` // JSON object
	CreatedAt time.Time `json:"created_at"`
}

type QueryFilter struct {
	Entity   string `query:"entity"`
	EntityID string `query:"entity_id"`
	UserID   int    `query:"user_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Entity = core.CleanString(qf.Entity, true /* lower */)
	qf.EntityID = core.CleanString(qf.EntityID)
}

type (
	Repository interface {
		InsertAuditLog(ctx context.Context, l AuditLog) (AuditLog, error)
		// QueryAuditLogs returns the matching logs, newest first.
		QueryAuditLogs(ctx context.Context, filter QueryFilter) ([]AuditLog, error)
	}

	// Service appends to the audit trail. Failures are logged, never returned:
	// the audited operation has already been applied.
	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) Record(ctx context.Context, action, entity string, entityID interface{}, details map[string]interface{}) {
	l := AuditLog{
		Action:    action,
		Entity:    entity,
		EntityID:  fmt.Sprint(entityID),
		Details:   "{}",
		CreatedAt: time.Now().UTC(),
	}
	if p, ok := core.PrincipalFromContext(ctx); ok && p.UserID != 0 {
		l.UserID = null.IntFrom(p.UserID)
	}
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			l.Details = string(data)
		}
	}

	if _, err := svc.repo.InsertAuditLog(ctx, l); err != nil {
		svc.logger.Error("recording audit log", errors.Wrapf(err, "%s %s %s", action, entity, l.EntityID))
	}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]AuditLog, error) {
	return svc.repo.QueryAuditLogs(ctx, filter)
}
