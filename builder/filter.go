package builder

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Filter operators.
const (
	OpEQ   = "eq"   // equals
	OpNEQ  = "neq"  // not equals
	OpGT   = "gt"   // greater than
	OpGTE  = "gte"  // greater than or equal
	OpLT   = "lt"   // less than
	OpLTE  = "lte"  // less than or equal
	OpLike = "like" // pattern matching
	OpIn   = "in"   // in array
	OpIs   = "is"   // is null / not null
)

// Logical operators.
const (
	LogAnd = "and"
	LogOr  = "or"
)

// NotNull is the Value sentinel for an OpIs filter matching non-null rows;
// a nil Value matches null rows.
const NotNull = "not null"

// Filter represents a single filter condition.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// LogicalFilter represents a logical combination of filters. Filters may
// contain Filter or *LogicalFilter values.
type LogicalFilter struct {
	Operator string `json:"operator"`
	Filters  []any  `json:"filters"`
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Operator: OpEQ, Value: value}
}

// In builds an in-array filter.
func In(column string, values ...any) Filter {
	return Filter{Column: column, Operator: OpIn, Value: values}
}

// IsNull builds a null-match filter.
func IsNull(column string) Filter {
	return Filter{Column: column, Operator: OpIs, Value: nil}
}

// And combines filters conjunctively.
func And(filters ...any) *LogicalFilter {
	return &LogicalFilter{Operator: LogAnd, Filters: filters}
}

// Or combines filters disjunctively.
func Or(filters ...any) *LogicalFilter {
	return &LogicalFilter{Operator: LogOr, Filters: filters}
}

// ApplyToSelect applies filters to a SELECT builder's WHERE clause.
func ApplyToSelect(sb *sqlbuilder.SelectBuilder, filters []any) error {
	for _, filter := range filters {
		expr, err := Condition(&sb.Cond, filter)
		if err != nil {
			return err
		}
		if expr != "" {
			sb.Where(expr)
		}
	}
	return nil
}

// ApplyToUpdate applies filters to an UPDATE builder's WHERE clause.
func ApplyToUpdate(ub *sqlbuilder.UpdateBuilder, filters []any) error {
	for _, filter := range filters {
		expr, err := Condition(&ub.Cond, filter)
		if err != nil {
			return err
		}
		if expr != "" {
			ub.Where(expr)
		}
	}
	return nil
}

// ApplyToDelete applies filters to a DELETE builder's WHERE clause.
func ApplyToDelete(db *sqlbuilder.DeleteBuilder, filters []any) error {
	for _, filter := range filters {
		expr, err := Condition(&db.Cond, filter)
		if err != nil {
			return err
		}
		if expr != "" {
			db.Where(expr)
		}
	}
	return nil
}

// Condition builds one parameterized condition expression against the
// builder's argument list, recursing through logical filters.
func Condition(c *sqlbuilder.Cond, filter any) (string, error) {
	switch f := filter.(type) {
	case Filter:
		return simpleCondition(c, f)
	case *LogicalFilter:
		return logicalCondition(c, f)
	default:
		return "", fmt.Errorf("unknown filter type: %T", filter)
	}
}

func simpleCondition(c *sqlbuilder.Cond, f Filter) (string, error) {
	switch f.Operator {
	case OpEQ:
		return c.EQ(f.Column, f.Value), nil
	case OpNEQ:
		return c.NE(f.Column, f.Value), nil
	case OpGT:
		return c.GT(f.Column, f.Value), nil
	case OpGTE:
		return c.GE(f.Column, f.Value), nil
	case OpLT:
		return c.LT(f.Column, f.Value), nil
	case OpLTE:
		return c.LE(f.Column, f.Value), nil
	case OpLike:
		return c.Like(f.Column, f.Value), nil
	case OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return "", fmt.Errorf("in filter on %s requires a value slice, got %T", f.Column, f.Value)
		}
		return c.In(f.Column, values...), nil
	case OpIs:
		if f.Value == nil {
			return c.IsNull(f.Column), nil
		}
		if f.Value == NotNull {
			return c.IsNotNull(f.Column), nil
		}
		return "", fmt.Errorf("invalid is operator value: %v", f.Value)
	default:
		return "", fmt.Errorf("unknown operator: %s", f.Operator)
	}
}

func logicalCondition(c *sqlbuilder.Cond, f *LogicalFilter) (string, error) {
	if len(f.Filters) == 0 {
		return "", nil
	}

	var conditions []string
	for _, sub := range f.Filters {
		expr, err := Condition(c, sub)
		if err != nil {
			return "", err
		}
		if expr != "" {
			conditions = append(conditions, expr)
		}
	}
	if len(conditions) == 0 {
		return "", nil
	}

	op := " AND "
	if f.Operator == LogOr {
		op = " OR "
	}
	return "(" + strings.Join(conditions, op) + ")", nil
}
