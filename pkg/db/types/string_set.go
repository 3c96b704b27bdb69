package dbtypes

import (
	"database/sql/driver"
	"sort"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringSet stores a sorted, de-duplicated list of strings as a Postgres text[].
type StringSet []string

// NewStringSet normalizes values: trims, drops empties and duplicates, sorts.
func NewStringSet(values ...string) StringSet {
	seen := make(map[string]struct{}, len(values))
	out := make(StringSet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

// Clone returns an independent copy so snapshots never share backing arrays.
func (s StringSet) Clone() StringSet {
	if s == nil {
		return StringSet{}
	}
	out := make(StringSet, len(s))
	copy(out, s)
	return out
}

func (s *StringSet) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*s = StringSet(arr)
	return nil
}

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	return pq.StringArray(s).Value()
}

// GormDBDataType keeps the column portable between Postgres and the sqlite test harness.
func (StringSet) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}
