package csv

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/storage"
	"github.com/strataframe/strata/pkg/table"
)

// ReadBulk reads many sources concurrently and returns their tables in
// input order. A failing source does not cancel its siblings; every
// read runs to completion and the error reported is the first failure
// by input position, not by completion time.
func ReadBulk(ctx context.Context, client *storage.Client, uris []string, convert ConvertOptions, parse ParseOptions, read ReadOptions) ([]*table.Table, error) {
	tables := make([]*table.Table, len(uris))
	errs := make([]error, len(uris))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, uri := range uris {
		g.Go(func() error {
			tables[i], errs[i] = Read(ctx, client, uri, convert, parse, read)
			return nil
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return tables, nil
}

// InferSchemaBulk infers a schema per source, in input order, with the
// same completion and error semantics as ReadBulk.
func InferSchemaBulk(ctx context.Context, client *storage.Client, uris []string, parse ParseOptions) ([]*datatypes.Schema, error) {
	schemas := make([]*datatypes.Schema, len(uris))
	errs := make([]error, len(uris))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, uri := range uris {
		g.Go(func() error {
			schemas[i], _, errs[i] = InferSchema(ctx, client, uri, parse)
			return nil
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return schemas, nil
}
