package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/setting"
)

type (
	settingRepository struct {
		db core.DB
	}

	settingRow struct {
		Name      string    `db:"name"`
		Value     string    `db:"value"`
		UpdatedBy null.Int  `db:"updated_by"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

var (
	_ setting.Repository = (*settingRepository)(nil) // interface compliance check

	settingColumns = []string{"name", "value", "updated_by", "updated_at"}
)

func NewSettingRepository(db core.DB) setting.Repository {
	return &settingRepository{db: db}
}

func (r settingRow) toSetting() setting.Setting {
	return setting.Setting{Name: r.Name, Value: r.Value, UpdatedBy: r.UpdatedBy, UpdatedAt: r.UpdatedAt.UTC()}
}

func (repo *settingRepository) GetSetting(ctx context.Context, name string) (setting.Setting, error) {
	var row settingRow
	q := psql.Select(settingColumns...).From("settings").Where(sq.Eq{"name": name})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return setting.Setting{}, trapNoRowsErr(err, setting.ErrNotFound, "getting setting")
	}
	return row.toSetting(), nil
}

func (repo *settingRepository) ListSettings(ctx context.Context) ([]setting.Setting, error) {
	var rows []settingRow
	if err := selectAll(ctx, repo.db, &rows, psql.Select(settingColumns...).From("settings").OrderBy("name ASC")); err != nil {
		return nil, errors.Wrap(err, "listing settings")
	}
	settings := make([]setting.Setting, 0, len(rows))
	for _, r := range rows {
		settings = append(settings, r.toSetting())
	}
	return settings, nil
}

func (repo *settingRepository) UpsertSetting(ctx context.Context, s setting.Setting) (setting.Setting, error) {
	q := psql.Insert("settings").
		Columns("name", "value", "updated_by", "updated_at").
		Values(s.Name, s.Value, s.UpdatedBy, s.UpdatedAt.UTC()).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at").
		Suffix(returning(settingColumns))

	var row settingRow
	if err := get(ctx, repo.db, &row, q); err != nil {
		return setting.Setting{}, errors.Wrap(err, "upserting setting")
	}
	return row.toSetting(), nil
}
