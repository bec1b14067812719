package domain

import "time"

// AnalysisRequest asks for risk assessments of one or more drugs against a VCF.
type AnalysisRequest struct {
	PatientID  string   `json:"patient_id,omitempty"`
	VCFContent string   `json:"vcf_content"`
	Drugs      []string `json:"drugs"`
	RequestID  string   `json:"request_id,omitempty"`
}

// AnalysisReport groups the per-drug reports produced for one VCF submission.
type AnalysisReport struct {
	ID               string       `json:"analysis_id"`
	PatientID        string       `json:"patient_id"`
	RequestID        string       `json:"request_id,omitempty"`
	Results          []DrugReport `json:"results"`
	GenesDetected    []string     `json:"genes_detected"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	CreatedAt        time.Time    `json:"created_at"`
}

// DrugReport is the full, client-facing result for a single drug.
type DrugReport struct {
	PatientID              string                 `json:"patient_id"`
	Drug                   string                 `json:"drug"`
	Timestamp              time.Time              `json:"timestamp"`
	RiskAssessment         RiskSummary            `json:"risk_assessment"`
	PharmacogenomicProfile PharmacogenomicProfile `json:"pharmacogenomic_profile"`
	ClinicalRecommendation ClinicalRecommendation `json:"clinical_recommendation"`
	Explanation            *Explanation           `json:"llm_generated_explanation,omitempty"`
	QualityMetrics         QualityMetrics         `json:"quality_metrics"`
}

// RiskSummary is the headline risk determination.
type RiskSummary struct {
	RiskLabel       RiskLabel      `json:"risk_label"`
	ConfidenceScore float64        `json:"confidence_score"`
	Severity        Severity       `json:"severity"`
	ResolutionPath  ResolutionPath `json:"resolution_path"`
}

// PharmacogenomicProfile reports the genotype evidence behind a determination.
type PharmacogenomicProfile struct {
	PrimaryGene        string        `json:"primary_gene"`
	Diplotype          string        `json:"diplotype"`
	Phenotype          string        `json:"phenotype"`
	SecondaryGene      string        `json:"secondary_gene,omitempty"`
	SecondaryDiplotype string        `json:"secondary_diplotype,omitempty"`
	SecondaryPhenotype string        `json:"secondary_phenotype,omitempty"`
	CombinationKey     string        `json:"combination_key,omitempty"`
	DetectedVariants   []VariantCall `json:"detected_variants"`
}

// ClinicalRecommendation carries the actionable guidance for a determination.
type ClinicalRecommendation struct {
	Recommendation         string `json:"recommendation"`
	GuidelineReference     string `json:"cpic_recommendation"`
	RequiresDoseAdjustment bool   `json:"requires_dose_adjustment"`
	Contraindicated        bool   `json:"contraindicated"`
}

// QualityMetrics summarises input quality for a drug report.
type QualityMetrics struct {
	VCFParsingSuccess   bool     `json:"vcf_parsing_success"`
	TotalVariantsParsed int      `json:"total_variants_parsed"`
	GenesDetected       []string `json:"genes_detected"`
	PrimaryGeneFound    bool     `json:"primary_gene_found"`
	SkippedRecords      int      `json:"skipped_records"`
	ExplanationSource   string   `json:"explanation_source"`
}

// ExplanationRequest carries exactly the fields an explainer may see.
// It is built by value so an explainer cannot reach back into the assessment.
type ExplanationRequest struct {
	Drug             string
	Gene             string
	Diplotype        string
	Phenotype        string
	RiskLabel        RiskLabel
	Severity         Severity
	Recommendation   string
	DetectedVariants []VariantCall
}

// NewExplanationRequest copies the explainable fields out of an assessment.
func NewExplanationRequest(a RiskAssessment, variants []VariantCall) ExplanationRequest {
	detected := make([]VariantCall, len(variants))
	copy(detected, variants)
	return ExplanationRequest{
		Drug:             a.Drug,
		Gene:             a.PrimaryGene,
		Diplotype:        a.Diplotype,
		Phenotype:        a.Phenotype,
		RiskLabel:        a.RiskLabel,
		Severity:         a.Severity,
		Recommendation:   a.Recommendation,
		DetectedVariants: detected,
	}
}

// ReferenceIDs returns the rsIDs of the detected variants, skipping blanks.
func (r ExplanationRequest) ReferenceIDs() []string {
	ids := make([]string, 0, len(r.DetectedVariants))
	for _, v := range r.DetectedVariants {
		if v.ReferenceID != "" {
			ids = append(ids, v.ReferenceID)
		}
	}
	return ids
}

// Explanation is human-readable narrative attached to a drug report.
type Explanation struct {
	Summary              string    `json:"summary"`
	Mechanism            string    `json:"mechanism"`
	ClinicalImplications string    `json:"clinical_implications"`
	Monitoring           string    `json:"monitoring"`
	FullExplanation      string    `json:"full_explanation"`
	GeneratedBy          string    `json:"generated_by"`
	GeneratedAt          time.Time `json:"generated_at"`
	Error                string    `json:"error,omitempty"`
}
