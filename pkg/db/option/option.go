package option

import (
	"fmt"
	"strings"

	"github.com/zarver/zarver/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type queryOptionFunc func(stmt *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(stmt *gorm.DB) *gorm.DB {
	return f(stmt)
}

// Operator names the supported comparison operators for ApplyOperator.
type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// Condition describes a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a comparison condition to the statement.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		if cond.Field == "" || cond.Operator == "" {
			return stmt
		}
		return stmt.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	})
}

// ApplyPagination decodes the cursor token and applies keyset pagination.
// Results must be ordered by created_at desc, id desc; one extra row is
// fetched so callers can detect whether more pages exist.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil && cursor != nil && cursor.ID != "" {
				stmt = stmt.Where(
					"(created_at < ?) OR (created_at = ? AND id < ?)",
					cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
				)
			}
		}

		size := page.PageSize
		if size < 1 {
			size = 10
		}
		if size > 250 {
			size = 250
		}
		return stmt.Limit(size + 1)
	})
}

// QuerySortBy restricts ordering to an allowlisted set of columns.
type QuerySortBy struct {
	Field string
	Order string
	Allow map[string]bool
}

// WithQuerySortBy builds a QuerySortBy from raw request values.
func WithQuerySortBy(field, order string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{Field: field, Order: order, Allow: allow}
}

// WithSortBy orders the statement by the requested column when allowed,
// falling back to created_at desc.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		if field == "" || (sort.Allow != nil && !sort.Allow[field]) {
			field = "created_at"
		}

		order := strings.ToLower(strings.TrimSpace(sort.Order))
		if order != "asc" && order != "desc" {
			order = "desc"
		}

		return stmt.Order(fmt.Sprintf("%s %s, id %s", field, order, order))
	})
}
