package memdb

import (
	"context"
	"sort"

	"github.com/trezcool/bursar/core/setting"
)

type settingRepository struct {
	db *DB
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *DB) setting.Repository {
	return &settingRepository{db: db}
}

func (repo *settingRepository) GetSetting(_ context.Context, name string) (setting.Setting, error) {
	repo.db.settingsMu.RLock()
	defer repo.db.settingsMu.RUnlock()

	if s, ok := repo.db.settings[name]; ok {
		return s, nil
	}
	return setting.Setting{}, setting.ErrNotFound
}

func (repo *settingRepository) ListSettings(_ context.Context) ([]setting.Setting, error) {
	repo.db.settingsMu.RLock()
	defer repo.db.settingsMu.RUnlock()

	settings := make([]setting.Setting, 0, len(repo.db.settings))
	for _, s := range repo.db.settings {
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Name < settings[j].Name })
	return settings, nil
}

func (repo *settingRepository) UpsertSetting(_ context.Context, s setting.Setting) (setting.Setting, error) {
	repo.db.settingsMu.Lock()
	defer repo.db.settingsMu.Unlock()

	repo.db.settings[s.Name] = s
	return s, nil
}
