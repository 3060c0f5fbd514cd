package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/source"
	"github.com/timmy/lenscat/internal/source/snapshot"
)

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(5, nil)))

	first, err := f.sync.Run(ctx, SyncRequest{SyncType: domain.SyncTypeManual, LogID: "log-1"}, nil)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 5, first.RecordsCreated)
	assert.Equal(t, 0, first.RecordsUpdated)

	second, err := f.sync.Run(ctx, SyncRequest{SyncType: domain.SyncTypeManual, LogID: "log-2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.RecordsCreated)
	assert.Equal(t, 5, second.RecordsUpdated)

	n, err := f.catalog.CountProducts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	p, err := f.catalog.GetProductByERPID(ctx, "p000")
	require.NoError(t, err)
	require.NotNil(t, p.CategoryID)
	assert.Equal(t, 4, p.StockQuantity)
	assert.Nil(t, p.MaterialID)
}

func TestSyncTestLimitIsExact(t *testing.T) {
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(10, nil)))
	limit := 3

	res, err := f.sync.Run(context.Background(), SyncRequest{TestLimit: &limit, LogID: "log"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RecordsFetched)
	assert.Equal(t, 3, res.RecordsProcessed)
	assert.Equal(t, 3, res.RecordsCreated)
}

// TestSyncTolerance checks the 50% boundary on 100 records.
func TestSyncTolerance(t *testing.T) {
	testCases := []struct {
		name    string
		errors  int
		success bool
	}{
		{name: "49 errors succeed", errors: 49, success: true},
		{name: "50 errors fail", errors: 50, success: false},
		{name: "51 errors fail", errors: 51, success: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			orphans := make(map[int]bool, tc.errors)
			for i := 0; i < tc.errors; i++ {
				orphans[i] = true
			}
			f := newFixture(t, snapshot.NewInMemory(catalogRecords(100, orphans)))

			res, err := f.sync.Run(context.Background(), SyncRequest{LogID: "log-tol"}, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.errors, res.ErrorCount)
			assert.Equal(t, 100, res.RecordsProcessed)
			assert.Equal(t, tc.success, res.Success)
			assert.Len(t, res.Errors, domain.MaxErrorSamples)

			_, total, err := f.syncErrors.ListByLog(context.Background(), "log-tol", 1, 0)
			require.NoError(t, err)
			assert.EqualValues(t, tc.errors, total)
		})
	}
}

func TestSyncProgressIsMonotonic(t *testing.T) {
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(120, nil)))
	rep := &recordingReporter{}

	_, err := f.sync.Run(context.Background(), SyncRequest{LogID: "log"}, rep)
	require.NoError(t, err)

	percents := rep.percents()
	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1], "progress went backwards at %d: %v", i, percents)
	}
	assert.Equal(t, syncProgressFetch, percents[0])
	assert.LessOrEqual(t, percents[len(percents)-1], syncProgressCeil)

	last := rep.progress[len(rep.progress)-1]
	assert.Equal(t, 120, last.CurrentItem)
	require.NotNil(t, last.Total)
	assert.Equal(t, 120, *last.Total)
}

func TestSyncCancelsAtBatchBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(120, nil)))
	rep := &recordingReporter{cancelOnNth: 2}

	res, err := f.sync.Run(ctx, SyncRequest{LogID: "log"}, rep)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 50, res.RecordsProcessed)

	n, err := f.catalog.CountProducts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 50, n, "the committed batch stays")
}

func TestSyncSeedsOnlyUnsetPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(2, nil)))

	res, err := f.sync.Run(ctx, SyncRequest{LogID: "log"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PricesSeeded)
	assert.Equal(t, "31.25", f.price(t, "p000"), "premium brand seeds at 2.5x")
	assert.Equal(t, "25.00", f.price(t, "p001"), "mid range brand seeds at 2x")

	require.NoError(t, f.db.Model(&domain.Product{}).Where("erp_id = ?", "p000").Update("price", dec("40")).Error)

	res, err = f.sync.Run(ctx, SyncRequest{LogID: "log"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PricesSeeded)
	assert.Equal(t, "40.00", f.price(t, "p000"))
}

func TestSyncRecordsInvalidAndDuplicateRecords(t *testing.T) {
	ctx := context.Background()
	records := catalogRecords(2, nil)
	records[source.EntityProduct] = append(records[source.EntityProduct],
		json.RawMessage(`{"_id":"p000","name":"Again","brand":"b1"}`),
		json.RawMessage(`{"_id":"bad","brand":"b1"}`),
		json.RawMessage(`not json`),
	)
	f := newFixture(t, snapshot.NewInMemory(records))

	res, err := f.sync.Run(ctx, SyncRequest{LogID: "log-bad"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.RecordsProcessed)
	assert.Equal(t, 2, res.RecordsCreated)
	assert.Equal(t, 1, res.RecordsSkipped)
	assert.Equal(t, 2, res.ErrorCount)
	assert.True(t, res.Success)

	rows, _, err := f.syncErrors.ListByLog(ctx, "log-bad", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, domain.SyncErrorInvalidRecord, row.ErrorType)
		assert.NotEmpty(t, row.RawPayload)
	}
}

func TestSyncRetriesDuplicateOfFailedRecord(t *testing.T) {
	ctx := context.Background()
	records := catalogRecords(1, nil)
	records[source.EntityProduct] = append(records[source.EntityProduct],
		json.RawMessage(`{"_id":"p900","name":"Orphan","brand":"b-missing"}`),
		json.RawMessage(`{"_id":"p900","name":"Fixed","brand":"b1"}`),
		json.RawMessage(`{"_id":"p900","name":"Again","brand":"b1"}`),
	)
	f := newFixture(t, snapshot.NewInMemory(records))

	res, err := f.sync.Run(ctx, SyncRequest{LogID: "log-dup"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.RecordsProcessed)
	assert.Equal(t, 2, res.RecordsCreated)
	assert.Equal(t, 1, res.RecordsSkipped, "only the copy after a written record is skipped")
	assert.Equal(t, 1, res.ErrorCount)

	p, err := f.catalog.GetProductByERPID(ctx, "p900")
	require.NoError(t, err)
	assert.Equal(t, "Fixed", p.Name)
}

func TestSyncSourceUnavailable(t *testing.T) {
	f := newFixture(t, downSource{})

	_, err := f.sync.Run(context.Background(), SyncRequest{LogID: "log"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fetch_products", se.Stage)
	assert.Equal(t, "fetch_products", errorDetails(err).Stage)
}
