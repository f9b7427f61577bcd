package recordstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/numeric"
	"github.com/arcflow/orchestrator/recordstore"
)

func newTestSQLiteStore(t *testing.T) *recordstore.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "records.db")
	s, err := recordstore.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateAndGetRecord(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, "acme", recordstore.Record{
		DomainID: "civic_complaints",
		RawInput: "pothole on 5th ave",
		IngestionData: map[string]any{
			"category": "pothole",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetRecord(ctx, "acme", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "pothole on 5th ave", got.RawInput)
	require.Equal(t, "pothole", got.IngestionData["category"])
}

func TestSQLiteStore_GetRecord_MissReturnsNilNotError(t *testing.T) {
	s := newTestSQLiteStore(t)
	got, err := s.GetRecord(context.Background(), "acme", "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteStore_MergeRecord_DeepMergesAndAppendsHistory(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, "acme", recordstore.Record{
		DomainID: "civic_complaints",
		IngestionData: map[string]any{
			"history": []any{"created"},
		},
	})
	require.NoError(t, err)

	err = s.MergeRecord(ctx, "acme", id, map[string]any{
		"ingestion_data": map[string]any{
			"category": "pothole",
			"history":  []any{"classified"},
		},
		"status": "complete",
	})
	require.NoError(t, err)

	got, err := s.GetRecord(ctx, "acme", id)
	require.NoError(t, err)
	require.Equal(t, "complete", got.Status)
	require.Equal(t, "pothole", got.IngestionData["category"])
	require.Equal(t, []any{"created", "classified"}, got.IngestionData["history"])
}

func TestSQLiteStore_CreateRecord_MaterializesFloatsToDecimalStrings(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, "acme", recordstore.Record{
		DomainID: "civic_complaints",
		IngestionData: map[string]any{
			"geo": map[string]any{"confidence": 0.873241},
		},
	})
	require.NoError(t, err)

	got, err := s.GetRecord(ctx, "acme", id)
	require.NoError(t, err)
	geo, ok := got.IngestionData["geo"].(map[string]any)
	require.True(t, ok)
	// MaterializeFloats runs before the JSON column is written, so the float
	// comes back as the fixed-decimal string the record store persisted,
	// not a json.Number/float64.
	encoded, ok := geo["confidence"].(string)
	require.True(t, ok, "persisted confidence should be a decimal string, not a float64")
	decoded, err := numeric.FromDecimalString(encoded)
	require.NoError(t, err)
	require.InDelta(t, 0.873241, decoded, 1e-6)
}

func TestSQLiteStore_MergeRecord_MaterializesFloatsToDecimalStrings(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, "acme", recordstore.Record{DomainID: "civic_complaints"})
	require.NoError(t, err)

	err = s.MergeRecord(ctx, "acme", id, map[string]any{
		"management_data": map[string]any{"priority_score": 4.5},
	})
	require.NoError(t, err)

	got, err := s.GetRecord(ctx, "acme", id)
	require.NoError(t, err)
	encoded, ok := got.ManagementData["priority_score"].(string)
	require.True(t, ok, "persisted priority_score should be a decimal string, not a float64")
	decoded, err := numeric.FromDecimalString(encoded)
	require.NoError(t, err)
	require.InDelta(t, 4.5, decoded, 1e-9)
}

func TestSQLiteStore_MergeRecord_NotFoundErrors(t *testing.T) {
	s := newTestSQLiteStore(t)
	err := s.MergeRecord(context.Background(), "acme", "missing", map[string]any{"status": "failed"})
	require.Error(t, err)
}

func TestSQLiteStore_QueryRecords_FiltersByDomainAndIngestionKey(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.CreateRecord(ctx, "acme", recordstore.Record{
		DomainID:      "civic_complaints",
		IngestionData: map[string]any{"category": "pothole"},
	})
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, "acme", recordstore.Record{
		DomainID:      "civic_complaints",
		IngestionData: map[string]any{"category": "streetlight"},
	})
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, "acme", recordstore.Record{
		DomainID:      "other_domain",
		IngestionData: map[string]any{"category": "pothole"},
	})
	require.NoError(t, err)

	got, err := s.QueryRecords(ctx, "acme", "civic_complaints", map[string]any{"category": "pothole"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "pothole", got[0].IngestionData["category"])
}
