package expr

import (
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/strataframe/strata/pkg/errors"
	"github.com/strataframe/strata/pkg/table"
)

// Eval evaluates a predicate against a table, producing one mask bit
// per row. A null cell never satisfies a comparison.
func Eval(e Expr, t *table.Table) (*array.Boolean, error) {
	switch node := e.(type) {
	case *CompareExpr:
		return evalCompare(node, t)
	case *LogicalExpr:
		left, err := Eval(node.Left, t)
		if err != nil {
			return nil, err
		}
		right, err := Eval(node.Right, t)
		if err != nil {
			return nil, err
		}
		return combineMasks(node.Op, left, right)
	default:
		return nil, errors.Newf(errors.TypeCapability,
			"expression %s cannot be evaluated as a predicate", e)
	}
}

// Filter applies a predicate list (conjunctively) to a table
func Filter(t *table.Table, preds []Expr) (*table.Table, error) {
	folded := Fold(preds)
	if folded == nil {
		return t, nil
	}
	mask, err := Eval(folded, t)
	if err != nil {
		return nil, err
	}
	return t.FilterByMask(mask)
}

// evalCompare handles column-vs-literal comparisons in either operand
// order.
func evalCompare(node *CompareExpr, t *table.Table) (*array.Boolean, error) {
	col, lit, op, err := splitOperands(node)
	if err != nil {
		return nil, err
	}

	arr, err := t.ColumnByName(col.Name)
	if err != nil {
		return nil, err
	}

	bldr := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer bldr.Release()
	bldr.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			bldr.Append(false)
			continue
		}
		v, err := cellValue(arr, i)
		if err != nil {
			return nil, err
		}
		cmp, ok := compareValues(v, lit.Value)
		if !ok {
			return nil, errors.Newf(errors.TypeConfig,
				"cannot compare column %q (%s) with literal %v", col.Name, arr.DataType(), lit.Value)
		}
		bldr.Append(opHolds(op, cmp))
	}
	return bldr.NewBooleanArray(), nil
}

// splitOperands extracts (column, literal, effective op) from a
// comparison, flipping the operator when the literal is on the left.
func splitOperands(node *CompareExpr) (*ColumnExpr, *LiteralExpr, Op, error) {
	if col, ok := node.Left.(*ColumnExpr); ok {
		if lit, ok := node.Right.(*LiteralExpr); ok {
			return col, lit, node.Op, nil
		}
	}
	if lit, ok := node.Left.(*LiteralExpr); ok {
		if col, ok := node.Right.(*ColumnExpr); ok {
			return col, lit, flip(node.Op), nil
		}
	}
	return nil, nil, node.Op, errors.Newf(errors.TypeCapability,
		"comparison %s must have one column and one literal operand", node)
}

func cellValue(arr interface{ IsNull(int) bool }, i int) (interface{}, error) {
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.Timestamp:
		return int64(a.Value(i)), nil
	default:
		return nil, errors.New(errors.TypeCapability, "unsupported column type in predicate")
	}
}

func combineMasks(op Op, left, right *array.Boolean) (*array.Boolean, error) {
	if left.Len() != right.Len() {
		return nil, errors.Newf(errors.TypeInternal,
			"mask length mismatch: %d vs %d", left.Len(), right.Len())
	}
	bldr := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer bldr.Release()
	bldr.Reserve(left.Len())
	for i := 0; i < left.Len(); i++ {
		l := left.IsValid(i) && left.Value(i)
		r := right.IsValid(i) && right.Value(i)
		if op == OpAnd {
			bldr.Append(l && r)
		} else {
			bldr.Append(l || r)
		}
	}
	return bldr.NewBooleanArray(), nil
}
