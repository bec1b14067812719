// Package domain contains core business entities and types for pharmacogenomic
// drug-risk assessment: variant calls, diplotypes, phenotypes and the risk
// determinations derived from them.
//
// Phenotype vocabulary and risk labels follow the Clinical Pharmacogenetics
// Implementation Consortium (CPIC) guideline conventions.
// Reference: https://cpicpgx.org/guidelines/
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RiskLabel is the categorical drug-response risk for a patient.
type RiskLabel string

const (
	RISK_SAFE          RiskLabel = "Safe"
	RISK_ADJUST_DOSAGE RiskLabel = "Adjust Dosage"
	RISK_TOXIC         RiskLabel = "Toxic"
	RISK_INEFFECTIVE   RiskLabel = "Ineffective"
	RISK_UNKNOWN       RiskLabel = "Unknown"
)

// Severity grades the clinical seriousness of a risk determination.
type Severity string

const (
	SEVERITY_NONE     Severity = "none"
	SEVERITY_LOW      Severity = "low"
	SEVERITY_MODERATE Severity = "moderate"
	SEVERITY_HIGH     Severity = "high"
	SEVERITY_CRITICAL Severity = "critical"
)

// PhenotypeAxis names the functional scale a gene's phenotypes are expressed on.
type PhenotypeAxis string

const (
	AXIS_METABOLIZER PhenotypeAxis = "metabolizer"
	AXIS_TRANSPORTER PhenotypeAxis = "transporter"
	AXIS_SENSITIVITY PhenotypeAxis = "sensitivity"
)

// ResolutionPath records which lookup produced a risk determination.
type ResolutionPath string

const (
	PATH_COMBINATION      ResolutionPath = "combination"
	PATH_PRIMARY          ResolutionPath = "primary_phenotype"
	PATH_FALLBACK         ResolutionPath = "fallback"
	PATH_UNSUPPORTED_DRUG ResolutionPath = "unsupported_drug"
)

const (
	// ReferenceDiplotype is assumed when a gene carries no observed star alleles.
	ReferenceDiplotype = "*1/*1"

	// UnknownPhenotype is returned when neither the table nor a gene default applies.
	UnknownPhenotype = "Unknown"

	// DiplotypeSeparator joins the two alleles of a diplotype.
	DiplotypeSeparator = "/"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRiskLabel  = errors.New("invalid risk label")
	ErrInvalidSeverity   = errors.New("invalid severity")
	ErrInvalidConfidence = errors.New("invalid confidence score")
	ErrInvalidAxis       = errors.New("invalid phenotype axis")
)

// IsValid reports whether the label belongs to the closed risk vocabulary.
func (r RiskLabel) IsValid() bool {
	switch r {
	case RISK_SAFE, RISK_ADJUST_DOSAGE, RISK_TOXIC, RISK_INEFFECTIVE, RISK_UNKNOWN:
		return true
	default:
		return false
	}
}

func (r RiskLabel) String() string {
	return string(r)
}

// RequiresDoseAdjustment is true for labels where standard dosing should not be used as-is.
func (r RiskLabel) RequiresDoseAdjustment() bool {
	return r == RISK_ADJUST_DOSAGE || r == RISK_TOXIC
}

// ParseRiskLabel converts free text (any case) into a RiskLabel.
func ParseRiskLabel(s string) (RiskLabel, error) {
	trimmed := strings.TrimSpace(s)
	for _, label := range []RiskLabel{RISK_SAFE, RISK_ADJUST_DOSAGE, RISK_TOXIC, RISK_INEFFECTIVE, RISK_UNKNOWN} {
		if strings.EqualFold(trimmed, string(label)) {
			return label, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRiskLabel, s)
}

// IsValid reports whether the severity belongs to the closed severity vocabulary.
func (s Severity) IsValid() bool {
	switch s {
	case SEVERITY_NONE, SEVERITY_LOW, SEVERITY_MODERATE, SEVERITY_HIGH, SEVERITY_CRITICAL:
		return true
	default:
		return false
	}
}

func (s Severity) String() string {
	return string(s)
}

// Rank orders severities from none (0) to critical (4); unknown values rank -1.
func (s Severity) Rank() int {
	switch s {
	case SEVERITY_NONE:
		return 0
	case SEVERITY_LOW:
		return 1
	case SEVERITY_MODERATE:
		return 2
	case SEVERITY_HIGH:
		return 3
	case SEVERITY_CRITICAL:
		return 4
	default:
		return -1
	}
}

// IsValid reports whether the axis is one of the known phenotype scales.
func (a PhenotypeAxis) IsValid() bool {
	switch a {
	case AXIS_METABOLIZER, AXIS_TRANSPORTER, AXIS_SENSITIVITY:
		return true
	default:
		return false
	}
}

// ValidateConfidence checks that a confidence score lies in [0, 1].
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, c)
	}
	return nil
}

// NormalizeDrugName upper-cases and trims a drug name so lookups are case-insensitive.
func NormalizeDrugName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// FormatDiplotype joins two allele designations into an "A/B" diplotype.
func FormatDiplotype(first, second string) string {
	return first + DiplotypeSeparator + second
}

// SplitDiplotype splits an "A/B" diplotype into its two alleles.
// ok is false when the value does not contain exactly two parts.
func SplitDiplotype(diplotype string) (first, second string, ok bool) {
	parts := strings.Split(diplotype, DiplotypeSeparator)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
