package setting

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/audit"
)

// Known settings
const (
	ReceiptPrefix      = "receipt_prefix"
	InstitutionName    = "institution_name"
	InstitutionAddress = "institution_address"
	Currency           = "currency"
)

var (
	// Defaults holds the value of known settings that were never set.
	Defaults = map[string]string{
		ReceiptPrefix:      "REC-",
		InstitutionName:    "",
		InstitutionAddress: "",
		Currency:           "USD",
	}

	// errors
	ErrNotFound = core.NewNotFoundError("setting", nil)
)

type Setting struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedBy null.Int  `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UpdateSetting struct {
	Name  string `json:"name" validate:"required,max=100,alphanum_"`
	Value string `json:"value" validate:"max=2000"`
}

func (us *UpdateSetting) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name, true /* lower */)
	us.Value = core.CleanString(us.Value)
	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.Name == ReceiptPrefix && len(us.Value) > 20 {
		return core.NewValidationError(nil, core.FieldError{Field: "value", Error: "receipt prefix cannot exceed 20 characters"})
	}
	return nil
}

type (
	Repository interface {
		// GetSetting returns ErrNotFound when name was never set.
		GetSetting(ctx context.Context, name string) (Setting, error)
		ListSettings(ctx context.Context) ([]Setting, error)
		UpsertSetting(ctx context.Context, s Setting) (Setting, error)
	}

	// Reader is the read side consumed by receipt numbering & rendering.
	Reader interface {
		Get(ctx context.Context, name, def string) (string, error)
	}

	Service struct {
		repo    Repository
		auditor *audit.Service
	}
)

var _ Reader = (*Service)(nil)

func NewService(repo Repository, auditor *audit.Service) *Service {
	return &Service{repo: repo, auditor: auditor}
}

// Get returns the value of name, or def when it was never set.
func (svc *Service) Get(ctx context.Context, name, def string) (string, error) {
	s, err := svc.repo.GetSetting(ctx, name)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return def, nil
		}
		return "", errors.Wrapf(err, "getting setting %q", name)
	}
	return s.Value, nil
}

// Setting returns the stored setting, falling back to its known default.
func (svc *Service) Setting(ctx context.Context, name string) (Setting, error) {
	s, err := svc.repo.GetSetting(ctx, name)
	if errors.Cause(err) == ErrNotFound {
		if def, ok := Defaults[name]; ok {
			return Setting{Name: name, Value: def}, nil
		}
	}
	return s, err
}

// List returns every stored setting plus the known defaults not stored yet.
func (svc *Service) List(ctx context.Context) ([]Setting, error) {
	stored, err := svc.repo.ListSettings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing settings")
	}
	seen := make(map[string]bool, len(stored))
	for _, s := range stored {
		seen[s.Name] = true
	}
	for _, name := range []string{Currency, InstitutionAddress, InstitutionName, ReceiptPrefix} {
		if !seen[name] {
			stored = append(stored, Setting{Name: name, Value: Defaults[name]})
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Name < stored[j].Name })
	return stored, nil
}

func (svc *Service) Set(ctx context.Context, us UpdateSetting) (Setting, error) {
	s := Setting{Name: us.Name, Value: us.Value, UpdatedAt: time.Now().UTC()}
	if p, ok := core.PrincipalFromContext(ctx); ok && p.UserID != 0 {
		s.UpdatedBy = null.IntFrom(p.UserID)
	}
	s, err := svc.repo.UpsertSetting(ctx, s)
	if err != nil {
		return Setting{}, errors.Wrap(err, "upserting setting")
	}
	svc.auditor.Record(ctx, audit.ActionUpdate, audit.EntitySetting, s.Name, map[string]interface{}{"value": s.Value})
	return s, nil
}
