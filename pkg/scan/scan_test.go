package scan

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/expr"
	"github.com/strataframe/strata/pkg/storage"
	"github.com/strataframe/strata/pkg/table"
)

func newCSVClient() *storage.Client {
	client := storage.NewClient()
	client.RegisterMem("a.csv", []byte("id,name\n1,alice\n2,bob\n3,carol\n"))
	client.RegisterMem("b.csv", []byte("id,name\n4,dave\n5,erin\n"))
	return client
}

func TestCSVSchemaInference(t *testing.T) {
	op := NewCSV(newCSVClient(), []string{"mem://a.csv", "mem://b.csv"})

	schema, err := op.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema.Names())
	assert.True(t, schema.Field(0).Type == datatypes.Int64)
}

func TestCSVSelectProjectsSchema(t *testing.T) {
	op := NewCSV(newCSVClient(), []string{"mem://a.csv"}).Select([]string{"name"})

	schema, err := op.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, schema.Names())
}

func TestCSVFilterAbsorbs(t *testing.T) {
	op := NewCSV(newCSVClient(), []string{"mem://a.csv", "mem://b.csv"})

	filtered, absorbed := op.Filter([]expr.Expr{expr.Ge(expr.Col("id"), expr.Lit(3))})
	assert.True(t, absorbed)

	units, err := filtered.ScanUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 2, "one unit per URI")

	total := 0
	for _, unit := range units {
		rows, err := unit.NumRows(context.Background())
		require.NoError(t, err)
		total += rows
	}
	assert.Equal(t, 3, total, "ids 3, 4, 5 survive")
}

func TestCSVLimitPerUnit(t *testing.T) {
	op := NewCSV(newCSVClient(), []string{"mem://a.csv"}).Limit(2)

	units, err := op.ScanUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 1)

	rows, err := units[0].NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
}

func TestCSVPushdownsDoNotMutateReceiver(t *testing.T) {
	op := NewCSV(newCSVClient(), []string{"mem://a.csv"})
	_ = op.Limit(1)
	_, _ = op.Filter([]expr.Expr{expr.Eq(expr.Col("id"), expr.Lit(1))})

	units, err := op.ScanUnits(context.Background())
	require.NoError(t, err)
	rows, err := units[0].NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rows, "original operator still scans everything")
}

func memTable(t *testing.T) (*datatypes.Schema, *table.Table) {
	t.Helper()
	schema := datatypes.MustNewSchema([]datatypes.Field{
		datatypes.NewField("v", datatypes.Int64),
	})
	bldr := array.NewInt64Builder(memory.DefaultAllocator)
	defer bldr.Release()
	bldr.AppendValues([]int64{1, 2, 3}, nil)
	tbl, err := table.New(schema, []arrow.Array{bldr.NewArray()})
	require.NoError(t, err)
	return schema, tbl
}

func TestAnonymousDeclinesPushdowns(t *testing.T) {
	schema, tbl := memTable(t)
	op := NewAnonymous(schema, []*table.Table{tbl})

	_, absorbed := op.Filter([]expr.Expr{expr.Eq(expr.Col("v"), expr.Lit(1))})
	assert.False(t, absorbed, "caller must apply the predicate itself")

	units, err := op.ScanUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.True(t, units[0].IsMaterialized())

	rows, err := units[0].NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
}

func TestBridgeForwards(t *testing.T) {
	op := NewBridge(NewCSV(newCSVClient(), []string{"mem://a.csv"}))
	assert.Equal(t, "bridge(csv)", op.Name())

	schema, err := op.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema.Names())

	filtered, absorbed := op.Filter([]expr.Expr{expr.Gt(expr.Col("id"), expr.Lit(1))})
	assert.True(t, absorbed, "absorption decision comes from the wrapped source")

	units, err := filtered.ScanUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 1)
	rows, err := units[0].NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rows, "ids 2 and 3 survive")
}
