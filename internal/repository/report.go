package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// DefaultListLimit caps ListByPatient when the caller passes no limit.
const DefaultListLimit = 50

// ReportRepository stores analysis reports as JSONB documents
type ReportRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: logger,
	}
}

// SaveReport inserts a report, replacing any previous payload with the same ID
func (r *ReportRepository) SaveReport(ctx context.Context, report *domain.AnalysisReport) error {
	if report == nil {
		return domain.NewValidationError("report", "report is required", nil)
	}
	if _, err := uuid.Parse(report.ID); err != nil {
		return domain.NewValidationError("analysis_id", "analysis id must be a UUID", report.ID)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	drugs := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		drugs = append(drugs, res.Drug)
	}
	genes := report.GenesDetected
	if genes == nil {
		genes = []string{}
	}

	query := `
		INSERT INTO analysis_reports (
			id, patient_id, request_id, drugs, genes_detected,
			payload, processing_time_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			drugs = EXCLUDED.drugs,
			genes_detected = EXCLUDED.genes_detected,
			processing_time_ms = EXCLUDED.processing_time_ms`

	_, err = r.db.Exec(ctx, query,
		report.ID,
		report.PatientID,
		report.RequestID,
		drugs,
		genes,
		payload,
		report.ProcessingTimeMs,
		report.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"analysis_id": report.ID,
			"error":       err,
		}).Error("Failed to save analysis report")
		return fmt.Errorf("saving report: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id": report.ID,
		"drugs":       len(drugs),
	}).Debug("Analysis report saved")

	return nil
}

// GetReport retrieves a report by its analysis ID
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*domain.AnalysisReport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("report %q not found: %w", id, domain.ErrNotFound)
	}

	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM analysis_reports WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report %q not found: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting report: %w", err)
	}

	return decodeReport(payload)
}

// ListByPatient returns a patient's reports, newest first
func (r *ReportRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]*domain.AnalysisReport, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(ctx, `
		SELECT payload FROM analysis_reports
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*domain.AnalysisReport, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}

	return reports, nil
}

// DeleteOlderThan removes reports created before cutoff and returns how many went
func (r *ReportRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM analysis_reports WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired reports: %w", err)
	}

	deleted := tag.RowsAffected()
	r.log.WithFields(logrus.Fields{
		"cutoff":  cutoff,
		"deleted": deleted,
	}).Info("Expired analysis reports deleted")

	return deleted, nil
}

func decodeReport(payload []byte) (*domain.AnalysisReport, error) {
	var report domain.AnalysisReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &report, nil
}
