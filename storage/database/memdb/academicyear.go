package memdb

import (
	"context"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/academicyear"
)

type academicYearRepository struct {
	db *table[academicyear.AcademicYear]
}

var _ academicyear.Repository = (*academicYearRepository)(nil) // interface compliance check

func NewAcademicYearRepository(db *DB) academicyear.Repository {
	return &academicYearRepository{db: db.years}
}

func (repo *academicYearRepository) nameTaken(name string, exclID int) bool {
	for id, ay := range repo.db.rows {
		if id != exclID && ay.Name == name {
			return true
		}
	}
	return false
}

func (repo *academicYearRepository) setCurrent(id int) {
	for yid, ay := range repo.db.rows {
		ay.IsCurrent = yid == id
		repo.db.rows[yid] = ay
	}
}

func (repo *academicYearRepository) CreateAcademicYear(_ context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.nameTaken(ay.Name, 0) {
		return academicyear.AcademicYear{}, academicyear.ErrNameExists
	}
	ay.ID = repo.db.nextID()
	repo.db.rows[ay.ID] = ay
	if ay.IsCurrent {
		repo.setCurrent(ay.ID)
	}
	return ay, nil
}

func (repo *academicYearRepository) GetAcademicYear(_ context.Context, id int) (academicyear.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ay, ok := repo.db.rows[id]; ok {
		return ay, nil
	}
	return academicyear.AcademicYear{}, academicyear.ErrNotFound
}

func (repo *academicYearRepository) GetCurrentAcademicYear(_ context.Context) (academicyear.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, ay := range repo.db.rows {
		if ay.IsCurrent {
			return ay, nil
		}
	}
	return academicyear.AcademicYear{}, academicyear.ErrNoCurrent
}

// ListAcademicYears returns the most recent years first.
func (repo *academicYearRepository) ListAcademicYears(_ context.Context) ([]academicyear.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	years := repo.db.all()
	sortRows(years, comparators[academicyear.AcademicYear]{
		"start_date": func(a, b academicyear.AcademicYear) int { return compareTimes(a.StartDate, b.StartDate) },
	}, []core.DBOrdering{{Field: "start_date"}})
	return years, nil
}

func (repo *academicYearRepository) UpdateAcademicYear(_ context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.rows[ay.ID]
	if !ok {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	if repo.nameTaken(ay.Name, ay.ID) {
		return academicyear.AcademicYear{}, academicyear.ErrNameExists
	}
	ay.IsCurrent = orig.IsCurrent
	repo.db.rows[ay.ID] = ay
	return ay, nil
}

func (repo *academicYearRepository) SetCurrentAcademicYear(_ context.Context, id int) (academicyear.AcademicYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	repo.setCurrent(id)
	return repo.db.rows[id], nil
}
