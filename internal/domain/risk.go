package domain

import "fmt"

// CombinationSeparator joins the two phenotypes of a combination key for display.
const CombinationSeparator = "_"

// PhenotypePair identifies a (primary, secondary) phenotype combination.
// It is comparable and used directly as a map key so phenotype labels
// containing the separator cannot collide.
type PhenotypePair struct {
	Primary   string `json:"primary" yaml:"primary"`
	Secondary string `json:"secondary" yaml:"secondary"`
}

// Key renders the pair as "<primary>_<secondary>".
func (p PhenotypePair) Key() string {
	return p.Primary + CombinationSeparator + p.Secondary
}

func (p PhenotypePair) String() string {
	return p.Key()
}

// RiskEntry is an authored risk determination in the knowledge base.
type RiskEntry struct {
	RiskLabel          RiskLabel `json:"risk_label"`
	Severity           Severity  `json:"severity"`
	Confidence         float64   `json:"confidence_score"`
	Recommendation     string    `json:"recommendation"`
	GuidelineReference string    `json:"guideline_reference"`
}

// Validate checks the entry's closed vocabularies and confidence range.
func (e RiskEntry) Validate() error {
	if !e.RiskLabel.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRiskLabel, e.RiskLabel)
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, e.Severity)
	}
	return ValidateConfidence(e.Confidence)
}

// GeneInfo describes a supported gene without exposing its lookup table.
type GeneInfo struct {
	Symbol             string        `json:"symbol"`
	Axis               PhenotypeAxis `json:"axis"`
	ReferenceDiplotype string        `json:"reference_diplotype"`
	DefaultPhenotype   string        `json:"default_phenotype"`
	Description        string        `json:"description,omitempty"`
}

// DrugProfile describes a supported drug and the genes that govern it.
type DrugProfile struct {
	Name          string `json:"name"`
	PrimaryGene   string `json:"primary_gene"`
	SecondaryGene string `json:"secondary_gene,omitempty"`
	Description   string `json:"description,omitempty"`
}

// HasSecondaryGene reports whether the drug's risk depends on a second gene.
func (d DrugProfile) HasSecondaryGene() bool {
	return d.SecondaryGene != ""
}

// RiskAssessment is the resolved risk of one drug for one patient.
type RiskAssessment struct {
	Drug               string         `json:"drug"`
	RiskLabel          RiskLabel      `json:"risk_label"`
	Severity           Severity       `json:"severity"`
	ConfidenceScore    float64        `json:"confidence_score"`
	Recommendation     string         `json:"recommendation"`
	GuidelineReference string         `json:"guideline_reference"`
	PrimaryGene        string         `json:"primary_gene"`
	SecondaryGene      string         `json:"secondary_gene,omitempty"`
	Diplotype          string         `json:"diplotype"`
	Phenotype          string         `json:"phenotype"`
	SecondaryDiplotype string         `json:"secondary_diplotype,omitempty"`
	SecondaryPhenotype string         `json:"secondary_phenotype,omitempty"`
	CombinationKey     string         `json:"combination_key,omitempty"`
	ResolutionPath     ResolutionPath `json:"resolution_path"`
}

// RequiresDoseAdjustment mirrors the label rule used in clinical recommendations.
func (r *RiskAssessment) RequiresDoseAdjustment() bool {
	return r.RiskLabel.RequiresDoseAdjustment()
}

// Contraindicated is true for critical toxicity.
func (r *RiskAssessment) Contraindicated() bool {
	return r.RiskLabel == RISK_TOXIC && r.Severity == SEVERITY_CRITICAL
}

// LogFields returns structured logging fields for audit trails.
func (r *RiskAssessment) LogFields() map[string]any {
	return map[string]any{
		"drug":            r.Drug,
		"risk_label":      string(r.RiskLabel),
		"severity":        string(r.Severity),
		"confidence":      r.ConfidenceScore,
		"primary_gene":    r.PrimaryGene,
		"diplotype":       r.Diplotype,
		"phenotype":       r.Phenotype,
		"combination_key": r.CombinationKey,
		"resolution_path": string(r.ResolutionPath),
	}
}
