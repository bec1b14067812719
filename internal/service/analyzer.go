package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// SamplePatientID is used for analyses of the built-in sample VCF.
const SamplePatientID = "PATIENT_DEMO01"

// ErrNoDrugs is returned when a request names no drugs after normalization.
var ErrNoDrugs = domain.NewValidationError("drugs", "at least one drug name is required", "")

// ErrUnparseableVCF is returned when the input contains no recognisable VCF content.
var ErrUnparseableVCF = errors.New("VCF content could not be parsed")

// AnalysisService runs the full pipeline for a VCF submission: parse, infer
// diplotypes, resolve risk per drug, attach explanations and optionally
// persist the report.
type AnalysisService struct {
	logger     *logrus.Logger
	kb         domain.KnowledgeBase
	parser     domain.VariantParser
	resolver   *RiskResolver
	explainer  domain.Explainer
	repository domain.ReportRepository
	now        func() time.Time
}

// AnalysisOption configures an AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithExplainer sets the narrative explainer. Defaults to rule-based templates.
func WithExplainer(e domain.Explainer) AnalysisOption {
	return func(s *AnalysisService) {
		if e != nil {
			s.explainer = e
		}
	}
}

// WithReportRepository enables report persistence.
func WithReportRepository(r domain.ReportRepository) AnalysisOption {
	return func(s *AnalysisService) {
		s.repository = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) AnalysisOption {
	return func(s *AnalysisService) {
		s.now = now
	}
}

// NewAnalysisService creates the analysis pipeline over kb.
func NewAnalysisService(logger *logrus.Logger, kb domain.KnowledgeBase, opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{
		logger:    logger,
		kb:        kb,
		parser:    NewVCFParserService(logger, kb.Genes()),
		resolver:  NewRiskResolver(logger, kb),
		explainer: NewRuleBasedExplainer(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolver exposes the risk resolver for direct lookups.
func (s *AnalysisService) Resolver() *RiskResolver {
	return s.resolver
}

// KnowledgeBase exposes the reference tables in use.
func (s *AnalysisService) KnowledgeBase() domain.KnowledgeBase {
	return s.kb
}

// Parse runs only the parsing stage.
func (s *AnalysisService) Parse(content string) *domain.ParseResult {
	return s.parser.Parse(content)
}

// Analyze runs the pipeline and returns one DrugReport per requested drug.
func (s *AnalysisService) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisReport, error) {
	start := time.Now()

	drugs := NormalizeDrugList(req.Drugs)
	if len(drugs) == 0 {
		return nil, ErrNoDrugs
	}

	parsed := s.parser.Parse(req.VCFContent)
	if !parsed.Success {
		return nil, ErrUnparseableVCF
	}

	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		patientID = GeneratePatientID()
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"request_id": req.RequestID,
		"drugs":      drugs,
		"variants":   parsed.TotalVariantsFound,
	}).Info("Starting pharmacogenomic analysis")

	report := &domain.AnalysisReport{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		RequestID:     req.RequestID,
		GenesDetected: parsed.GenesDetected,
		Results:       make([]domain.DrugReport, 0, len(drugs)),
		CreatedAt:     s.now(),
	}

	for _, drug := range drugs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis cancelled: %w", err)
		}
		report.Results = append(report.Results, s.buildDrugReport(ctx, patientID, drug, parsed))
	}
	report.ProcessingTimeMs = time.Since(start).Milliseconds()

	if s.repository != nil {
		if err := s.repository.SaveReport(ctx, report); err != nil {
			s.logger.WithError(err).WithField("analysis_id", report.ID).Warn("Failed to persist analysis report")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"analysis_id":     report.ID,
		"patient_id":      patientID,
		"results":         len(report.Results),
		"processing_time": report.ProcessingTimeMs,
	}).Info("Pharmacogenomic analysis completed")

	return report, nil
}

// AnalyzeSample runs the pipeline on the built-in sample VCF.
func (s *AnalysisService) AnalyzeSample(ctx context.Context, drugs []string) (*domain.AnalysisReport, error) {
	return s.Analyze(ctx, domain.AnalysisRequest{
		PatientID:  SamplePatientID,
		VCFContent: SampleVCF(),
		Drugs:      drugs,
	})
}

// AssessDiplotypes resolves drugs against caller-supplied diplotypes,
// bypassing VCF parsing.
func (s *AnalysisService) AssessDiplotypes(drugs []string, diplotypes map[string]string) []domain.RiskAssessment {
	return s.resolver.ResolveAll(NormalizeDrugList(drugs), diplotypes)
}

func (s *AnalysisService) buildDrugReport(ctx context.Context, patientID, drug string, parsed *domain.ParseResult) domain.DrugReport {
	assessment := s.resolver.Resolve(drug, parsed.Diplotypes)

	detected := []domain.VariantCall{}
	if assessment.PrimaryGene != "" {
		detected = parsed.VariantsFor(assessment.PrimaryGene)
	}

	report := domain.DrugReport{
		PatientID: patientID,
		Drug:      assessment.Drug,
		Timestamp: s.now(),
		RiskAssessment: domain.RiskSummary{
			RiskLabel:       assessment.RiskLabel,
			ConfidenceScore: assessment.ConfidenceScore,
			Severity:        assessment.Severity,
			ResolutionPath:  assessment.ResolutionPath,
		},
		PharmacogenomicProfile: domain.PharmacogenomicProfile{
			PrimaryGene:        assessment.PrimaryGene,
			Diplotype:          assessment.Diplotype,
			Phenotype:          assessment.Phenotype,
			SecondaryGene:      assessment.SecondaryGene,
			SecondaryDiplotype: assessment.SecondaryDiplotype,
			SecondaryPhenotype: assessment.SecondaryPhenotype,
			CombinationKey:     assessment.CombinationKey,
			DetectedVariants:   detected,
		},
		ClinicalRecommendation: domain.ClinicalRecommendation{
			Recommendation:         assessment.Recommendation,
			GuidelineReference:     assessment.GuidelineReference,
			RequiresDoseAdjustment: assessment.RequiresDoseAdjustment(),
			Contraindicated:        assessment.Contraindicated(),
		},
		QualityMetrics: domain.QualityMetrics{
			VCFParsingSuccess:   parsed.Success,
			TotalVariantsParsed: parsed.TotalVariantsFound,
			GenesDetected:       parsed.GenesDetected,
			PrimaryGeneFound:    assessment.PrimaryGene != "" && parsed.HasGene(assessment.PrimaryGene),
			SkippedRecords:      parsed.Stats.Skipped(),
		},
	}

	explanation, err := s.explainer.Explain(ctx, domain.NewExplanationRequest(assessment, detected))
	if err != nil || explanation == nil {
		s.logger.WithError(err).WithField("drug", assessment.Drug).Warn("Explainer failed, using rule-based fallback")
		explanation, _ = NewRuleBasedExplainer().Explain(ctx, domain.NewExplanationRequest(assessment, detected))
	}
	report.Explanation = explanation
	report.QualityMetrics.ExplanationSource = explanation.GeneratedBy

	return report
}

// NormalizeDrugList upper-cases and trims names, splitting comma lists and
// dropping empty and repeated entries while keeping first-seen order.
func NormalizeDrugList(drugs []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(drugs))
	for _, entry := range drugs {
		for _, d := range strings.Split(entry, ",") {
			name := domain.NormalizeDrugName(d)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// GeneratePatientID returns "PATIENT_" followed by six upper-case hex characters.
func GeneratePatientID() string {
	return "PATIENT_" + strings.ToUpper(uuid.NewString()[:6])
}

// SampleVCF returns a small VCF with one call per supported pharmacogene.
func SampleVCF() string {
	return `##fileformat=VCFv4.2
##FILTER=<ID=PASS,Description="All filters passed">
##INFO=<ID=GENE,Number=1,Type=String,Description="Gene symbol">
##INFO=<ID=STAR,Number=1,Type=String,Description="Star allele">
##INFO=<ID=RS,Number=1,Type=String,Description="dbSNP rsID">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
chr22	42522613	rs3892097	C	T	.	PASS	GENE=CYP2D6;STAR=*4;RS=rs3892097
chr10	96541616	rs4244285	G	A	.	PASS	GENE=CYP2C19;STAR=*2;RS=rs4244285
chr10	96702047	rs1799853	C	T	.	PASS	GENE=CYP2C9;STAR=*2;RS=rs1799853
chr12	21331549	rs4149056	T	C	.	PASS	GENE=SLCO1B1;STAR=*5;RS=rs4149056
chr6	18128556	rs1800462	G	A	.	PASS	GENE=TPMT;STAR=*2;RS=rs1800462
chr1	97981395	rs3918290	C	T	.	PASS	GENE=DPYD;STAR=*2A;RS=rs3918290
`
}
