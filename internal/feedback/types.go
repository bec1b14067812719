// Package feedback stores clinician reviews of drug risk determinations.
// Reviews sit alongside reports and never alter a determination.
package feedback

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pharmaguard-server/internal/domain"
)

// Feedback represents a clinician's review of one drug determination for a patient.
type Feedback struct {
	ID                 int64            `json:"id,omitempty"`
	PatientID          string           `json:"patient_id"`
	Drug               string           `json:"drug"`
	Diplotype          string           `json:"diplotype,omitempty"`
	Phenotype          string           `json:"phenotype,omitempty"`
	SuggestedRiskLabel domain.RiskLabel `json:"suggested_risk_label"` // System's determination
	ClinicianRiskLabel domain.RiskLabel `json:"clinician_risk_label"` // Clinician's call
	Agreed             bool             `json:"agreed"`
	Notes              string           `json:"notes,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Normalize trims identifiers, upper-cases the drug and derives Agreed.
func (f *Feedback) Normalize() {
	f.PatientID = strings.TrimSpace(f.PatientID)
	f.Drug = normalizeDrug(f.Drug)
	f.Diplotype = strings.TrimSpace(f.Diplotype)
	f.Phenotype = strings.TrimSpace(f.Phenotype)
	f.Agreed = f.SuggestedRiskLabel == f.ClinicianRiskLabel
}

// Validate checks the fields a store requires.
func (f *Feedback) Validate() error {
	if strings.TrimSpace(f.PatientID) == "" {
		return domain.NewValidationError("patient_id", "patient id is required", f.PatientID)
	}
	if strings.TrimSpace(f.Drug) == "" {
		return domain.NewValidationError("drug", "drug is required", f.Drug)
	}
	if !f.SuggestedRiskLabel.IsValid() {
		return domain.NewValidationError("suggested_risk_label", "unknown risk label", string(f.SuggestedRiskLabel))
	}
	if !f.ClinicianRiskLabel.IsValid() {
		return domain.NewValidationError("clinician_risk_label", "unknown risk label", string(f.ClinicianRiskLabel))
	}
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. An existing entry for the same
	// patient and drug is updated in place.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves feedback for a patient and drug, or nil if none exists.
	Get(ctx context.Context, patientID, drug string) (*Feedback, error)

	// List returns feedback entries, newest first, with pagination.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

// ExportVersion is written into every export document.
const ExportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

func normalizeDrug(drug string) string {
	return strings.ToUpper(strings.TrimSpace(drug))
}

// riskLabel restores a stored label, keeping unrecognised text as-is.
func riskLabel(s string) domain.RiskLabel {
	if label, err := domain.ParseRiskLabel(s); err == nil {
		return label
	}
	return domain.RiskLabel(s)
}
