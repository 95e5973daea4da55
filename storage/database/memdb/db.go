// Package memdb keeps every table in process memory. It backs the test suites and `DEV_DATABASEENGINE=memory` runs.
package memdb

import (
	"sort"
	"sync"
	"time"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/audit"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/receipt"
	"github.com/trezcool/bursar/core/setting"
	"github.com/trezcool/bursar/core/student"
	"github.com/trezcool/bursar/core/user"
)

type (
	// DB locks enrollments before payments whenever it needs both.
	DB struct {
		users       *table[user.User]
		students    *table[student.Student]
		years       *table[academicyear.AcademicYear]
		enrollments *table[enrollment.Enrollment]
		payments    *table[payment.Payment]
		receipts    *table[receipt.Receipt]
		auditLogs   *table[audit.AuditLog]

		settingsMu sync.RWMutex
		settings   map[string]setting.Setting

		dayLocksMu sync.Mutex
		dayLocks   map[string]*sync.Mutex
	}

	table[T any] struct {
		sync.RWMutex
		rows  map[int]T
		pkSeq int
	}

	// comparators return <0, 0 or >0 like strings.Compare.
	comparators[T any] map[string]func(a, b T) int
)

func Open() *DB {
	return &DB{
		users:       newTable[user.User](),
		students:    newTable[student.Student](),
		years:       newTable[academicyear.AcademicYear](),
		enrollments: newTable[enrollment.Enrollment](),
		payments:    newTable[payment.Payment](),
		receipts:    newTable[receipt.Receipt](),
		auditLogs:   newTable[audit.AuditLog](),
		settings:    make(map[string]setting.Setting),
		dayLocks:    make(map[string]*sync.Mutex),
	}
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[int]T)}
}

func (t *table[T]) nextID() int {
	t.pkSeq++
	return t.pkSeq
}

// all returns the rows by ascending primary key. The caller holds the lock.
func (t *table[T]) all() []T {
	ids := make([]int, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rows := make([]T, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, t.rows[id])
	}
	return rows
}

func (t *table[T]) filter(match func(T) bool) []T {
	rows := make([]T, 0)
	for _, row := range t.all() {
		if match(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

// sortRows applies ordering, skipping fields with no comparator.
func sortRows[T any](rows []T, cmps comparators[T], ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			if c := cmp(rows[i], rows[j]); c != 0 {
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return false
	})
}

func reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func hasComparator[T any](cmps comparators[T], ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		if _, ok := cmps[ord.Field]; ok {
			return true
		}
	}
	return false
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	return a.Compare(b)
}
