package db

import (
	"fmt"
	"strings"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

// Filter represents a single typed predicate of a Query.
type Filter interface {
	// SQL returns the SQL fragment for this filter
	SQL() string

	// Args returns the arguments for this filter
	Args() []interface{}

	// Valid checks if the filter is valid
	Valid() bool

	// Columns lists the columns the fragment reads
	Columns() []string
}

// CategoryFilter matches destinations of one category.
type CategoryFilter struct {
	Category string
}

func (f CategoryFilter) Valid() bool         { return strings.TrimSpace(f.Category) != "" }
func (f CategoryFilter) SQL() string         { return "category = ?" }
func (f CategoryFilter) Args() []interface{} { return []interface{}{f.Category} }
func (f CategoryFilter) Columns() []string   { return []string{"category"} }

// SearchFilter does a substring match over text columns, OR-ed together.
// When Fields is empty the entity's default search columns are used.
type SearchFilter struct {
	Term   string
	Fields []string
}

// Valid checks the term is non-blank.
func (f SearchFilter) Valid() bool {
	return strings.TrimSpace(f.Term) != "" && len(f.Fields) > 0
}

// SQL returns the OR-ed LIKE conditions.
func (f SearchFilter) SQL() string {
	conditions := make([]string, len(f.Fields))
	for i, c := range f.Fields {
		conditions[i] = c + " LIKE ?"
	}
	return "(" + strings.Join(conditions, " OR ") + ")"
}

// Args returns one wildcard pattern per column.
func (f SearchFilter) Args() []interface{} {
	args := make([]interface{}, len(f.Fields))
	for i := range f.Fields {
		args[i] = "%" + f.Term + "%"
	}
	return args
}

func (f SearchFilter) Columns() []string { return f.Fields }

// ActiveFilter matches on the is_active flag.
type ActiveFilter struct {
	Active bool
}

func (f ActiveFilter) Valid() bool         { return true }
func (f ActiveFilter) SQL() string         { return "is_active = ?" }
func (f ActiveFilter) Args() []interface{} { return []interface{}{boolToInt(f.Active)} }
func (f ActiveFilter) Columns() []string   { return []string{"is_active"} }

// UserFilter matches rows owned by one user.
type UserFilter struct {
	UserID string
}

func (f UserFilter) Valid() bool         { return f.UserID != "" }
func (f UserFilter) SQL() string         { return "user_id = ?" }
func (f UserFilter) Args() []interface{} { return []interface{}{f.UserID} }
func (f UserFilter) Columns() []string   { return []string{"user_id"} }

// StatusFilter matches itineraries in one status.
type StatusFilter struct {
	Status string
}

func (f StatusFilter) Valid() bool         { return models.ValidStatus(f.Status) }
func (f StatusFilter) SQL() string         { return "status = ?" }
func (f StatusFilter) Args() []interface{} { return []interface{}{f.Status} }
func (f StatusFilter) Columns() []string   { return []string{"status"} }

// SyncedFilter matches on the synced flag.
type SyncedFilter struct {
	Synced bool
}

func (f SyncedFilter) Valid() bool         { return true }
func (f SyncedFilter) SQL() string         { return "synced = ?" }
func (f SyncedFilter) Args() []interface{} { return []interface{}{boolToInt(f.Synced)} }
func (f SyncedFilter) Columns() []string   { return []string{"synced"} }

// Query selects rows of one entity: predicates AND-ed, whitelisted order, limit.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Where appends filters and returns the query for chaining.
func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}

// entity describes a table for query building.
type entity struct {
	table        string
	columns      map[string]bool
	orderable    map[string]bool
	search       []string
	defaultOrder string
}

func newEntity(table string, columns, orderable, search []string, defaultOrder string) entity {
	e := entity{
		table:        table,
		columns:      make(map[string]bool, len(columns)),
		orderable:    make(map[string]bool, len(orderable)),
		search:       search,
		defaultOrder: defaultOrder,
	}
	for _, c := range columns {
		e.columns[c] = true
	}
	for _, c := range orderable {
		e.orderable[c] = true
	}
	return e
}

// build renders the WHERE/ORDER/LIMIT tail of a SELECT over e.
func (e entity) build(q Query) (string, []interface{}, error) {
	var parts []string
	var args []interface{}

	for _, f := range q.Filters {
		if sf, ok := f.(SearchFilter); ok && len(sf.Fields) == 0 {
			sf.Fields = e.search
			f = sf
		}
		if !f.Valid() {
			return "", nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("invalid filter %T", f))
		}
		for _, c := range f.Columns() {
			if !e.columns[c] {
				return "", nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("%s has no column %q", e.table, c))
			}
		}
		parts = append(parts, f.SQL())
		args = append(args, f.Args()...)
	}

	var b strings.Builder
	if len(parts) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}

	order := q.OrderBy
	if order == "" {
		order = e.defaultOrder
	}
	if !e.orderable[order] {
		return "", nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("cannot order %s by %q", e.table, order))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)
	if q.Desc {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
		if q.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, q.Offset)
		}
	}

	return b.String(), args, nil
}
