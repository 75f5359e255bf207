// Package database builds parameterized Postgres list queries with sanitized identifiers.
package database

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Op is a comparison operator usable in a Condition.
type Op string

const (
	Equal              Op = "="
	NotEqual           Op = "<>"
	GreaterThanOrEqual Op = ">="
	LessThan           Op = "<"
	ILike              Op = "ILIKE"
)

// Condition compares a column against a bound parameter.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Where returns a Condition on field.
func Where(field string, op Op, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

type order struct {
	column string
	desc   bool
}

// ListQuery describes a SELECT over a single table.
type ListQuery struct {
	table      string
	columns    string
	conditions []Condition
	order      []order
	limit      int
	offset     int
}

// ListQueryOption configures a ListQuery.
type ListQueryOption func(*ListQuery)

// NewListQuery starts a query over table. columns is a trusted select list
// (typically a package constant) and is emitted verbatim; "*" when empty.
func NewListQuery(table, columns string, opts ...ListQueryOption) *ListQuery {
	q := &ListQuery{table: table, columns: strings.TrimSpace(columns)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// WithCondition ANDs cond into the WHERE clause.
func WithCondition(cond Condition) ListQueryOption {
	return func(q *ListQuery) { q.conditions = append(q.conditions, cond) }
}

// WithOrderBy appends a sort key; keys apply in the order given.
func WithOrderBy(column string, desc bool) ListQueryOption {
	return func(q *ListQuery) { q.order = append(q.order, order{column: column, desc: desc}) }
}

// WithLimit bounds the result size. Non-positive values leave the query unbounded.
func WithLimit(limit int) ListQueryOption {
	return func(q *ListQuery) { q.limit = max(limit, 0) }
}

// WithOffset skips rows. Non-positive values are ignored.
func WithOffset(offset int) ListQueryOption {
	return func(q *ListQuery) { q.offset = max(offset, 0) }
}

// Where adds a condition to an existing query.
func (q *ListQuery) Where(cond Condition) *ListQuery {
	q.conditions = append(q.conditions, cond)
	return q
}

// Build renders the SQL text and its positional arguments.
func (q *ListQuery) Build() (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	cols := q.columns
	if cols == "" {
		cols = "*"
	}
	b.WriteString("SELECT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(sanitizeIdentifier(q.table))

	where := make([]string, 0, len(q.conditions))
	for _, c := range q.conditions {
		if c.Field == "" || !validOp(c.Op) {
			continue
		}
		where = append(where, sanitizeIdentifier(c.Field)+" "+string(c.Op)+" "+bind(c.Value))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	if len(q.order) > 0 {
		keys := make([]string, len(q.order))
		for i, o := range q.order {
			keys[i] = sanitizeIdentifier(o.column)
			if o.desc {
				keys[i] += " DESC"
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(keys, ", "))
	}

	if q.limit > 0 {
		b.WriteString(" LIMIT " + bind(q.limit))
	}
	if q.offset > 0 {
		b.WriteString(" OFFSET " + bind(q.offset))
	}
	return b.String(), args
}

func validOp(op Op) bool {
	switch op {
	case Equal, NotEqual, GreaterThanOrEqual, LessThan, ILike:
		return true
	default:
		return false
	}
}

// sanitizeIdentifier quotes ident, treating dots as qualifiers.
func sanitizeIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}
