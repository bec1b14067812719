package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func codeineFeedback(patientID string) *Feedback {
	return &Feedback{
		PatientID:          patientID,
		Drug:               "codeine",
		Diplotype:          "*4/*4",
		Phenotype:          "Poor Metabolizer",
		SuggestedRiskLabel: domain.RISK_INEFFECTIVE,
		ClinicianRiskLabel: domain.RISK_INEFFECTIVE,
		Notes:              "Switched to morphine",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path())
}

func TestSQLiteStore_Save(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := codeineFeedback("PATIENT_AAA111")
	require.NoError(t, store.Save(ctx, fb))

	assert.NotZero(t, fb.ID)
	assert.Equal(t, "CODEINE", fb.Drug, "drug is upper-cased")
	assert.True(t, fb.Agreed)
	assert.False(t, fb.CreatedAt.IsZero())
	assert.False(t, fb.UpdatedAt.IsZero())
}

func TestSQLiteStore_Save_Upsert(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := codeineFeedback("PATIENT_AAA111")
	require.NoError(t, store.Save(ctx, fb))
	originalID := fb.ID

	update := codeineFeedback("PATIENT_AAA111")
	update.Drug = " CODEINE "
	update.ClinicianRiskLabel = domain.RISK_TOXIC
	update.Notes = "Updated after review"
	require.NoError(t, store.Save(ctx, update))

	assert.Equal(t, originalID, update.ID, "same patient and drug updates in place")
	assert.False(t, update.Agreed)

	retrieved, err := store.Get(ctx, "PATIENT_AAA111", "codeine")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, domain.RISK_TOXIC, retrieved.ClinicianRiskLabel)
	assert.Equal(t, domain.RISK_INEFFECTIVE, retrieved.SuggestedRiskLabel)
	assert.Equal(t, "Updated after review", retrieved.Notes)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_Save_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(fb *Feedback)
		field  string
	}{
		{"missing patient", func(fb *Feedback) { fb.PatientID = "  " }, "patient_id"},
		{"missing drug", func(fb *Feedback) { fb.Drug = "" }, "drug"},
		{"bad suggested label", func(fb *Feedback) { fb.SuggestedRiskLabel = "Maybe" }, "suggested_risk_label"},
		{"bad clinician label", func(fb *Feedback) { fb.ClinicianRiskLabel = "" }, "clinician_risk_label"},
	}

	store := createTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := codeineFeedback("PATIENT_VAL001")
			tt.mutate(fb)

			err := store.Save(context.Background(), fb)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)

	fb, err := store.Get(context.Background(), "PATIENT_NONE00", "WARFARIN")
	require.NoError(t, err)
	assert.Nil(t, fb)
}

func TestSQLiteStore_ListCountDelete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"PATIENT_L00001", "PATIENT_L00002", "PATIENT_L00003"} {
		require.NoError(t, store.Save(ctx, codeineFeedback(id)))
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	page, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	require.NoError(t, store.Delete(ctx, rest[0].ID))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, codeineFeedback("PATIENT_EXP001")))
	warfarin := &Feedback{
		PatientID:          "PATIENT_EXP001",
		Drug:               "WARFARIN",
		Diplotype:          "*3/*3",
		Phenotype:          "Poor Metabolizer",
		SuggestedRiskLabel: domain.RISK_TOXIC,
		ClinicianRiskLabel: domain.RISK_ADJUST_DOSAGE,
	}
	require.NoError(t, source.Save(ctx, warfarin))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	var export FeedbackExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, ExportVersion, export.Version)
	assert.Equal(t, 2, export.Count)

	target := createTestStore(t)
	require.NoError(t, target.Save(ctx, codeineFeedback("PATIENT_EXP001")))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped, "existing patient+drug entries are skipped")

	got, err := target.Get(ctx, "PATIENT_EXP001", "WARFARIN")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RISK_ADJUST_DOSAGE, got.ClinicianRiskLabel)
	assert.False(t, got.Agreed)
}

func TestSQLiteStore_ExportEmpty(t *testing.T) {
	store := createTestStore(t)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"feedback": []`)
	assert.Contains(t, buf.String(), `"count": 0`)
}

func TestSQLiteStore_ImportJSON_Invalid(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, _, err := store.ImportJSON(ctx, strings.NewReader("{not json"))
	assert.Error(t, err)

	doc := `{"version":"1.0","feedback":[{"patient_id":"","drug":"CODEINE","suggested_risk_label":"Safe","clinician_risk_label":"Safe"}]}`
	imported, skipped, err := store.ImportJSON(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)
}
