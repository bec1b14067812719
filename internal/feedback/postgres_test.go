package feedback

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-server/internal/domain"
)

var feedbackColumns = []string{
	"id", "patient_id", "drug", "diplotype", "phenotype",
	"suggested_risk_label", "clinician_risk_label", "agreed",
	"notes", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO feedback")).
		WithArgs("PATIENT_PG0001", "CODEINE", "*4/*4", "Poor Metabolizer",
			"Ineffective", "Ineffective", true, "Switched to morphine",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	fb := codeineFeedback("PATIENT_PG0001")
	require.NoError(t, store.Save(context.Background(), fb))

	assert.Equal(t, int64(7), fb.ID)
	assert.Equal(t, created, fb.CreatedAt)
	assert.False(t, fb.UpdatedAt.IsZero())
}

func TestPostgresStore_Save_Invalid(t *testing.T) {
	store, _ := newMockStore(t)

	fb := codeineFeedback("")
	err := store.Save(context.Background(), fb)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patient_id", verr.Field)
}

func TestPostgresStore_Save_DatabaseError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO feedback")).
		WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), codeineFeedback("PATIENT_PG0002"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM feedback WHERE patient_id = $1 AND drug = $2")).
		WithArgs("PATIENT_PG0003", "WARFARIN").
		WillReturnRows(sqlmock.NewRows(feedbackColumns).AddRow(
			int64(3), "PATIENT_PG0003", "WARFARIN", "*3/*3", "Poor Metabolizer",
			"Toxic", "Adjust Dosage", false, "", now, now,
		))

	fb, err := store.Get(context.Background(), "PATIENT_PG0003", "warfarin")
	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.Equal(t, int64(3), fb.ID)
	assert.Equal(t, domain.RISK_TOXIC, fb.SuggestedRiskLabel)
	assert.Equal(t, domain.RISK_ADJUST_DOSAGE, fb.ClinicianRiskLabel)
	assert.False(t, fb.Agreed)
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM feedback WHERE patient_id")).
		WithArgs("PATIENT_NONE00", "CODEINE").
		WillReturnRows(sqlmock.NewRows(feedbackColumns))

	fb, err := store.Get(context.Background(), "PATIENT_NONE00", "CODEINE")
	require.NoError(t, err)
	assert.Nil(t, fb)
}

func TestPostgresStore_ListAndExport(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows(feedbackColumns).
			AddRow(int64(2), "PATIENT_PG0004", "CLOPIDOGREL", "*2/*2", "Poor Metabolizer", "Ineffective", "Ineffective", true, "", now, now).
			AddRow(int64(1), "PATIENT_PG0004", "CODEINE", "*1/*1", "Normal Metabolizer", "Safe", "Safe", true, "", now, now)
	}

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs(10, 0).
		WillReturnRows(rows())

	list, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "CLOPIDOGREL", list[0].Drug)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs(maxExportLimit, 0).
		WillReturnRows(rows())

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"count": 2`)
}

func TestPostgresStore_CountDeleteClose(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM feedback")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM feedback WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(context.Background(), 5))

	mock.ExpectClose()
	require.NoError(t, store.Close())
}
