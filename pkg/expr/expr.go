// Package expr implements the minimal predicate language absorbed by
// lazy partitions: column references, literals, comparisons and
// boolean conjunction/disjunction.
//
// Two evaluation modes exist: against a materialized table (producing a
// row mask) and against per-column statistics (producing a three-valued
// truth, see pkg/stats). The ingestion core needs nothing richer; the
// full expression evaluator is an external collaborator.
package expr

import (
	"fmt"
)

// Op is a binary operator
type Op string

const (
	// OpEq is equality
	OpEq Op = "=="
	// OpNe is inequality
	OpNe Op = "!="
	// OpLt is less-than
	OpLt Op = "<"
	// OpLe is less-or-equal
	OpLe Op = "<="
	// OpGt is greater-than
	OpGt Op = ">"
	// OpGe is greater-or-equal
	OpGe Op = ">="
	// OpAnd is boolean conjunction
	OpAnd Op = "and"
	// OpOr is boolean disjunction
	OpOr Op = "or"
)

// Expr is a predicate tree node
type Expr interface {
	String() string
}

// ColumnExpr references a column by name
type ColumnExpr struct {
	Name string
}

func (e *ColumnExpr) String() string {
	return "col(" + e.Name + ")"
}

// LiteralExpr holds a constant. Integers are normalized to int64.
type LiteralExpr struct {
	Value interface{}
}

func (e *LiteralExpr) String() string {
	return fmt.Sprintf("lit(%v)", e.Value)
}

// CompareExpr compares two sub-expressions
type CompareExpr struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (e *CompareExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// LogicalExpr combines two predicates with and/or
type LogicalExpr struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (e *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// Col references a column
func Col(name string) Expr {
	return &ColumnExpr{Name: name}
}

// Lit wraps a constant value
func Lit(value interface{}) Expr {
	return &LiteralExpr{Value: normalize(value)}
}

// Eq builds left == right
func Eq(left, right Expr) Expr { return &CompareExpr{Op: OpEq, Left: left, Right: right} }

// Ne builds left != right
func Ne(left, right Expr) Expr { return &CompareExpr{Op: OpNe, Left: left, Right: right} }

// Lt builds left < right
func Lt(left, right Expr) Expr { return &CompareExpr{Op: OpLt, Left: left, Right: right} }

// Le builds left <= right
func Le(left, right Expr) Expr { return &CompareExpr{Op: OpLe, Left: left, Right: right} }

// Gt builds left > right
func Gt(left, right Expr) Expr { return &CompareExpr{Op: OpGt, Left: left, Right: right} }

// Ge builds left >= right
func Ge(left, right Expr) Expr { return &CompareExpr{Op: OpGe, Left: left, Right: right} }

// And builds boolean conjunction
func And(left, right Expr) Expr { return &LogicalExpr{Op: OpAnd, Left: left, Right: right} }

// Or builds boolean disjunction
func Or(left, right Expr) Expr { return &LogicalExpr{Op: OpOr, Left: left, Right: right} }

// Fold conjoins a predicate list into a single expression. Returns nil
// for an empty list.
func Fold(preds []Expr) Expr {
	var folded Expr
	for _, p := range preds {
		if folded == nil {
			folded = p
		} else {
			folded = And(folded, p)
		}
	}
	return folded
}

func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// CompareScalars orders two scalar values of compatible types,
// returning (-1|0|1, true) or (0, false) when incomparable. Numerics
// compare cross-type via float64.
func CompareScalars(a, b interface{}) (int, bool) {
	return compareValues(a, b)
}

// Flip mirrors a comparison operator across swapped operands
func Flip(op Op) Op {
	return flip(op)
}

// compareValues orders two scalar values of compatible types, returning
// (-1|0|1, true) or (0, false) when incomparable. Numerics compare
// cross-type via float64.
func compareValues(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmpInt(av, bv), true
		case float64:
			return cmpFloat(float64(av), bv), true
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return cmpFloat(av, float64(bv)), true
		case float64:
			return cmpFloat(av, bv), true
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			default:
				return 0, true
			}
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// opHolds applies a comparison operator to an ordering result
func opHolds(op Op, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	default:
		return false
	}
}

// flip mirrors an operator across swapped operands
func flip(op Op) Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return op
	}
}
