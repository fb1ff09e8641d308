// Package stats holds per-column summaries used to prune partition
// reads without touching storage.
//
// Statistics are attached at partition construction from cheap metadata
// and are never recomputed after materialization or filter absorption;
// they may therefore overestimate the surviving value range, which is
// safe for pruning (a False verdict is always provable).
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strataframe/strata/pkg/expr"
)

// TruthValue is the outcome of evaluating a predicate against value
// ranges: provably false, provably true, or undecidable.
type TruthValue int

const (
	// Maybe means the statistics cannot decide the predicate
	Maybe TruthValue = iota
	// False means no row can satisfy the predicate
	False
	// True means every row satisfies the predicate
	True
)

func (tv TruthValue) String() string {
	switch tv {
	case False:
		return "false"
	case True:
		return "true"
	default:
		return "maybe"
	}
}

// ColumnStats summarizes one column's value range. Min and Max hold
// int64, float64, string or bool.
type ColumnStats struct {
	Min interface{}
	Max interface{}
}

// TableStatistics maps column names to their summaries
type TableStatistics struct {
	columns map[string]ColumnStats
}

// New builds table statistics from per-column summaries
func New(columns map[string]ColumnStats) *TableStatistics {
	copied := make(map[string]ColumnStats, len(columns))
	for name, cs := range columns {
		copied[name] = cs
	}
	return &TableStatistics{columns: copied}
}

// Column returns the summary for a column, if present
func (ts *TableStatistics) Column(name string) (ColumnStats, bool) {
	cs, ok := ts.columns[name]
	return cs, ok
}

// Union widens ranges element-wise across two statistics sets, e.g.
// when folding per-file summaries into one partition summary. Columns
// missing from either side are dropped: their range is unknown.
func (ts *TableStatistics) Union(other *TableStatistics) *TableStatistics {
	merged := make(map[string]ColumnStats)
	for name, a := range ts.columns {
		b, ok := other.columns[name]
		if !ok {
			continue
		}
		lo, okLo := minValue(a.Min, b.Min)
		hi, okHi := maxValue(a.Max, b.Max)
		if !okLo || !okHi {
			continue
		}
		merged[name] = ColumnStats{Min: lo, Max: hi}
	}
	return &TableStatistics{columns: merged}
}

// Eval decides a predicate from the value ranges alone. Anything the
// ranges cannot settle comes back Maybe; only False licenses skipping
// the read.
func (ts *TableStatistics) Eval(e expr.Expr) TruthValue {
	switch node := e.(type) {
	case *expr.CompareExpr:
		return ts.evalCompare(node)
	case *expr.LogicalExpr:
		left := ts.Eval(node.Left)
		right := ts.Eval(node.Right)
		if node.Op == expr.OpAnd {
			return andTruth(left, right)
		}
		return orTruth(left, right)
	default:
		return Maybe
	}
}

func (ts *TableStatistics) evalCompare(node *expr.CompareExpr) TruthValue {
	col, lit, op, ok := operands(node)
	if !ok {
		return Maybe
	}
	cs, ok := ts.columns[col.Name]
	if !ok || cs.Min == nil || cs.Max == nil {
		return Maybe
	}
	cmpMin, okMin := expr.CompareScalars(cs.Min, lit.Value)
	cmpMax, okMax := expr.CompareScalars(cs.Max, lit.Value)
	if !okMin || !okMax {
		return Maybe
	}

	switch op {
	case expr.OpLt:
		if cmpMax < 0 {
			return True
		}
		if cmpMin >= 0 {
			return False
		}
	case expr.OpLe:
		if cmpMax <= 0 {
			return True
		}
		if cmpMin > 0 {
			return False
		}
	case expr.OpGt:
		if cmpMin > 0 {
			return True
		}
		if cmpMax <= 0 {
			return False
		}
	case expr.OpGe:
		if cmpMin >= 0 {
			return True
		}
		if cmpMax < 0 {
			return False
		}
	case expr.OpEq:
		if cmpMin > 0 || cmpMax < 0 {
			return False
		}
		if cmpMin == 0 && cmpMax == 0 {
			return True
		}
	case expr.OpNe:
		if cmpMin > 0 || cmpMax < 0 {
			return True
		}
		if cmpMin == 0 && cmpMax == 0 {
			return False
		}
	}
	return Maybe
}

func operands(node *expr.CompareExpr) (*expr.ColumnExpr, *expr.LiteralExpr, expr.Op, bool) {
	if col, ok := node.Left.(*expr.ColumnExpr); ok {
		if lit, ok := node.Right.(*expr.LiteralExpr); ok {
			return col, lit, node.Op, true
		}
	}
	if lit, ok := node.Left.(*expr.LiteralExpr); ok {
		if col, ok := node.Right.(*expr.ColumnExpr); ok {
			return col, lit, expr.Flip(node.Op), true
		}
	}
	return nil, nil, node.Op, false
}

func andTruth(a, b TruthValue) TruthValue {
	if a == False || b == False {
		return False
	}
	if a == True && b == True {
		return True
	}
	return Maybe
}

func orTruth(a, b TruthValue) TruthValue {
	if a == True || b == True {
		return True
	}
	if a == False && b == False {
		return False
	}
	return Maybe
}

func minValue(a, b interface{}) (interface{}, bool) {
	cmp, ok := expr.CompareScalars(a, b)
	if !ok {
		return nil, false
	}
	if cmp <= 0 {
		return a, true
	}
	return b, true
}

func maxValue(a, b interface{}) (interface{}, bool) {
	cmp, ok := expr.CompareScalars(a, b)
	if !ok {
		return nil, false
	}
	if cmp >= 0 {
		return a, true
	}
	return b, true
}

// String renders column ranges in name order
func (ts *TableStatistics) String() string {
	names := make([]string, 0, len(ts.columns))
	for name := range ts.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		cs := ts.columns[name]
		parts = append(parts, fmt.Sprintf("%s:[%v, %v]", name, cs.Min, cs.Max))
	}
	return "stats{" + strings.Join(parts, " ") + "}"
}
