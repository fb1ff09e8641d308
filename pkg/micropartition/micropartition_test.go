package micropartition

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataframe/strata/pkg/csv"
	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/errors"
	"github.com/strataframe/strata/pkg/expr"
	"github.com/strataframe/strata/pkg/stats"
	"github.com/strataframe/strata/pkg/storage"
)

var testSchema = datatypes.MustNewSchema([]datatypes.Field{
	datatypes.NewField("id", datatypes.Int64),
	datatypes.NewField("name", datatypes.Utf8),
})

const testData = "id,name\n1,alice\n2,bob\n3,carol\n4,dave\n"

func newDeferredPartition(t *testing.T) (*MicroPartition, *storage.IOStats, *storage.Client) {
	t.Helper()
	ioStats := storage.NewIOStats()
	client := storage.NewClient(storage.WithIOStats(ioStats))
	client.RegisterMem("data.csv", []byte(testData))

	params := DeferredLoadingParams{
		URIs: []string{"mem://data.csv"},
		Format: CsvParams{
			Parse:       csv.DefaultParseOptions(),
			Read:        csv.DefaultReadOptions(),
			KnownSchema: testSchema,
		},
		Limit: -1,
	}
	return NewDeferred(client, testSchema, params, nil), ioStats, client
}

func TestDeferredMaterialization(t *testing.T) {
	mp, ioStats, _ := newDeferredPartition(t)

	assert.False(t, mp.IsMaterialized())
	assert.Equal(t, []string{"id", "name"}, mp.ColumnNames())
	assert.Equal(t, int64(0), ioStats.Opens(), "schema access must not touch storage")

	rows, err := mp.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rows)
	assert.True(t, mp.IsMaterialized())
	assert.Equal(t, int64(1), ioStats.Opens())
}

func TestTablesSingleFlight(t *testing.T) {
	mp, ioStats, _ := newDeferredPartition(t)
	ctx := context.Background()

	first, err := mp.Tables(ctx)
	require.NoError(t, err)
	second, err := mp.Tables(ctx)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Same(t, first[0], second[0], "repeated forcing returns the same handle")
	assert.Equal(t, int64(1), ioStats.Opens(), "exactly one load")
}

func TestTablesConcurrentSingleFlight(t *testing.T) {
	mp, ioStats, _ := newDeferredPartition(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	handles := make([][]interface{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables, err := mp.Tables(ctx)
			if err == nil && len(tables) == 1 {
				handles[i] = []interface{}{tables[0]}
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < 8; i++ {
		require.NotNil(t, handles[i])
		assert.Same(t, handles[0][0], handles[i][0])
	}
	assert.Equal(t, int64(1), ioStats.Opens())
}

func TestFailedLoadLeavesDeferred(t *testing.T) {
	ioStats := storage.NewIOStats()
	client := storage.NewClient(storage.WithIOStats(ioStats))

	params := DeferredLoadingParams{
		URIs: []string{"mem://late.csv"},
		Format: CsvParams{
			Parse:       csv.DefaultParseOptions(),
			Read:        csv.DefaultReadOptions(),
			KnownSchema: testSchema,
		},
		Limit: -1,
	}
	mp := NewDeferred(client, testSchema, params, nil)

	_, err := mp.Tables(context.Background())
	require.Error(t, err)
	assert.False(t, mp.IsMaterialized(), "failure leaves the partition deferred")

	// the source appearing later makes a retry succeed
	client.RegisterMem("late.csv", []byte(testData))
	rows, err := mp.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rows)
}

func TestFilterEmptyPredicatesSelectsNothing(t *testing.T) {
	mp, ioStats, _ := newDeferredPartition(t)

	empty, err := mp.Filter(nil)
	require.NoError(t, err)
	assert.True(t, empty.IsMaterialized())
	assert.True(t, empty.Schema().Equal(testSchema))

	rows, err := empty.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
	assert.Equal(t, int64(0), ioStats.Opens(), "no byte source is ever opened")
}

func TestFilterStatsPruningSkipsIO(t *testing.T) {
	mp, ioStats, _ := newDeferredPartition(t)
	mp.statistics = stats.New(map[string]stats.ColumnStats{
		"id": {Min: int64(1), Max: int64(4)},
	})

	pruned, err := mp.Filter([]expr.Expr{expr.Gt(expr.Col("id"), expr.Lit(100))})
	require.NoError(t, err)
	assert.True(t, pruned.IsMaterialized())

	rows, err := pruned.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
	assert.Equal(t, int64(0), ioStats.Opens(), "proven-false predicate must not read")
}

func TestFilterDeferredAbsorbsPredicate(t *testing.T) {
	mp, ioStats, _ := newDeferredPartition(t)

	filtered, err := mp.Filter([]expr.Expr{expr.Le(expr.Col("id"), expr.Lit(2))})
	require.NoError(t, err)
	assert.False(t, filtered.IsMaterialized(), "predicate absorbs without I/O")
	assert.Equal(t, int64(0), ioStats.Opens())
	assert.False(t, mp.IsMaterialized(), "original partition untouched")

	rows, err := filtered.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
}

func TestFilterChainAccumulates(t *testing.T) {
	mp, _, _ := newDeferredPartition(t)

	once, err := mp.Filter([]expr.Expr{expr.Ge(expr.Col("id"), expr.Lit(2))})
	require.NoError(t, err)
	twice, err := once.Filter([]expr.Expr{expr.Le(expr.Col("id"), expr.Lit(3))})
	require.NoError(t, err)

	rows, err := twice.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
}

func TestFilterMaterializedIsEager(t *testing.T) {
	mp, _, _ := newDeferredPartition(t)
	_, err := mp.Tables(context.Background())
	require.NoError(t, err)

	filtered, err := mp.Filter([]expr.Expr{expr.Eq(expr.Col("name"), expr.Lit("bob"))})
	require.NoError(t, err)
	assert.True(t, filtered.IsMaterialized())

	rows, err := filtered.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestParquetMaterializationUnsupported(t *testing.T) {
	client := storage.NewClient()
	mp := NewDeferred(client, testSchema, DeferredLoadingParams{
		URIs:   []string{"mem://data.parquet"},
		Format: ParquetParams{},
		Limit:  -1,
	}, nil)

	_, err := mp.Tables(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeCapability))
	assert.False(t, mp.IsMaterialized())
}

func TestReadCSVEager(t *testing.T) {
	client := storage.NewClient()
	client.RegisterMem("a.csv", []byte("id,name\n1,alice\n"))
	client.RegisterMem("b.csv", []byte("id,name\n2,bob\n"))

	mp, err := ReadCSV(context.Background(), client,
		[]string{"mem://a.csv", "mem://b.csv"},
		csv.DefaultConvertOptions(), csv.DefaultParseOptions(), csv.DefaultReadOptions())
	require.NoError(t, err)
	assert.True(t, mp.IsMaterialized())

	rows, err := mp.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	tbl, err := mp.Concat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.NumRows())
}

func TestReadCSVNoURIs(t *testing.T) {
	_, err := ReadCSV(context.Background(), storage.NewClient(), nil,
		csv.DefaultConvertOptions(), csv.DefaultParseOptions(), csv.DefaultReadOptions())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestSizeBytes(t *testing.T) {
	mp, _, _ := newDeferredPartition(t)
	size, err := mp.SizeBytes(context.Background())
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}
