package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/feedback"
	"github.com/pharmaguard-server/internal/service"
)

// AnalyzeVCFParams defines parameters for the analyze_vcf tool
type AnalyzeVCFParams struct {
	VCFContent string `json:"vcf_content" jsonschema:"full VCF text including header lines"`
	Drugs      string `json:"drugs" jsonschema:"comma-separated drug names, e.g. CODEINE,WARFARIN"`
	PatientID  string `json:"patient_id,omitempty" jsonschema:"optional patient identifier"`
}

// AssessDrugRiskParams defines parameters for the assess_drug_risk tool
type AssessDrugRiskParams struct {
	Drug       string            `json:"drug" jsonschema:"drug name, or a comma-separated list"`
	Diplotypes map[string]string `json:"diplotypes" jsonschema:"gene symbol to diplotype, e.g. {\"CYP2D6\": \"*1/*4\"}"`
}

// AssessDrugRiskResult defines the result structure for assess_drug_risk
type AssessDrugRiskResult struct {
	Assessments []domain.RiskAssessment `json:"assessments"`
}

// ResolvePhenotypeParams defines parameters for the resolve_phenotype tool
type ResolvePhenotypeParams struct {
	Gene      string `json:"gene" jsonschema:"gene symbol, e.g. CYP2C19"`
	Diplotype string `json:"diplotype" jsonschema:"star-allele diplotype, e.g. *1/*17"`
}

// ListSupportedDrugsParams takes no arguments
type ListSupportedDrugsParams struct{}

// ListSupportedDrugsResult lists the drugs and genes the knowledge base covers
type ListSupportedDrugsResult struct {
	Drugs []domain.DrugProfile `json:"drugs"`
	Genes []domain.GeneInfo    `json:"genes"`
}

// SubmitFeedbackParams defines parameters for the submit_feedback tool
type SubmitFeedbackParams struct {
	PatientID          string `json:"patient_id" jsonschema:"patient the determination was made for"`
	Drug               string `json:"drug" jsonschema:"drug name"`
	Diplotype          string `json:"diplotype,omitempty" jsonschema:"primary gene diplotype shown in the report"`
	Phenotype          string `json:"phenotype,omitempty" jsonschema:"primary gene phenotype shown in the report"`
	SuggestedRiskLabel string `json:"suggested_risk_label" jsonschema:"risk label the report gave"`
	ClinicianRiskLabel string `json:"clinician_risk_label" jsonschema:"risk label the clinician settled on"`
	Notes              string `json:"notes,omitempty" jsonschema:"free-text rationale"`
}

// ExportFeedbackParams takes no arguments
type ExportFeedbackParams struct{}

// ExportFeedbackResult reports where an export was written
type ExportFeedbackResult struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// registerTools registers every tool with the MCP SDK.
func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_vcf",
		Description: "Parse a VCF, infer pharmacogene diplotypes and assess risk for each requested drug",
	}, s.handleAnalyzeVCF)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "assess_drug_risk",
		Description: "Assess drug risk from known diplotypes without a VCF",
	}, s.handleAssessDrugRisk)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "resolve_phenotype",
		Description: "Look up the phenotype for a gene and diplotype",
	}, s.handleResolvePhenotype)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_supported_drugs",
		Description: "List the drugs and genes covered by the reference tables",
	}, s.handleListSupportedDrugs)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record a clinician's review of a drug risk determination",
	}, s.handleSubmitFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Write all clinician feedback to a JSON file in the data directory",
	}, s.handleExportFeedback)

	s.logger.WithField("tool_count", 6).Info("Successfully registered all tools")
}

func (s *LiteServer) handleAnalyzeVCF(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeVCFParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "analyze_vcf").Info("Tool invoked")

	if strings.TrimSpace(params.VCFContent) == "" {
		return errorResult("Missing required parameter", errors.New("vcf_content is required")), nil, nil
	}

	report, err := s.analysis.Analyze(ctx, domain.AnalysisRequest{
		PatientID:  params.PatientID,
		VCFContent: params.VCFContent,
		Drugs:      []string{params.Drugs},
	})
	if err != nil {
		return errorResult("Analysis failed", err), nil, nil
	}

	lines := make([]string, 0, len(report.Results)+1)
	lines = append(lines, fmt.Sprintf("Patient %s, %d variants in %s",
		report.PatientID, report.Results[0].QualityMetrics.TotalVariantsParsed, genesText(report.GenesDetected)))
	for _, r := range report.Results {
		lines = append(lines, summarizeReport(r))
	}

	return textResult(strings.Join(lines, "\n")), report, nil
}

func (s *LiteServer) handleAssessDrugRisk(ctx context.Context, req *mcp.CallToolRequest, params AssessDrugRiskParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "assess_drug_risk").Info("Tool invoked")

	drugs := service.NormalizeDrugList([]string{params.Drug})
	if len(drugs) == 0 {
		return errorResult("Missing required parameter", errors.New("drug is required")), nil, nil
	}

	diplotypes := make(map[string]string, len(params.Diplotypes))
	for gene, diplotype := range params.Diplotypes {
		diplotypes[strings.ToUpper(strings.TrimSpace(gene))] = strings.TrimSpace(diplotype)
	}

	result := AssessDrugRiskResult{Assessments: s.analysis.AssessDiplotypes(drugs, diplotypes)}

	lines := make([]string, 0, len(result.Assessments))
	for _, a := range result.Assessments {
		lines = append(lines, fmt.Sprintf("%s: %s (%s), %s %s %s",
			a.Drug, a.RiskLabel, a.Severity, a.PrimaryGene, a.Diplotype, a.Phenotype))
	}

	return textResult(strings.Join(lines, "\n")), result, nil
}

func (s *LiteServer) handleResolvePhenotype(ctx context.Context, req *mcp.CallToolRequest, params ResolvePhenotypeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "resolve_phenotype").Info("Tool invoked")

	gene := strings.ToUpper(strings.TrimSpace(params.Gene))
	diplotype := strings.TrimSpace(params.Diplotype)
	if gene == "" || diplotype == "" {
		return errorResult("Missing required parameter", errors.New("gene and diplotype are required")), nil, nil
	}

	result := s.analysis.Resolver().Phenotypes().ResolveDetailed(gene, diplotype)
	return textResult(fmt.Sprintf("%s %s: %s (%s)", result.Gene, result.Diplotype, result.Phenotype, result.Source)), result, nil
}

func (s *LiteServer) handleListSupportedDrugs(ctx context.Context, req *mcp.CallToolRequest, params ListSupportedDrugsParams) (*mcp.CallToolResult, any, error) {
	kb := s.analysis.KnowledgeBase()

	result := ListSupportedDrugsResult{}
	names := make([]string, 0)
	for _, name := range kb.SupportedDrugs() {
		if profile, ok := kb.Drug(name); ok {
			result.Drugs = append(result.Drugs, profile)
			names = append(names, name)
		}
	}
	for _, symbol := range kb.Genes() {
		if info, ok := kb.Gene(symbol); ok {
			result.Genes = append(result.Genes, info)
		}
	}

	return textResult("Supported drugs: " + strings.Join(names, ", ")), result, nil
}

func (s *LiteServer) handleSubmitFeedback(ctx context.Context, req *mcp.CallToolRequest, params SubmitFeedbackParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "submit_feedback").Info("Tool invoked")

	suggested, err := domain.ParseRiskLabel(params.SuggestedRiskLabel)
	if err != nil {
		return errorResult("Invalid suggested_risk_label", err), nil, nil
	}
	clinician, err := domain.ParseRiskLabel(params.ClinicianRiskLabel)
	if err != nil {
		return errorResult("Invalid clinician_risk_label", err), nil, nil
	}

	fb := &feedback.Feedback{
		PatientID:          params.PatientID,
		Drug:               params.Drug,
		Diplotype:          params.Diplotype,
		Phenotype:          params.Phenotype,
		SuggestedRiskLabel: suggested,
		ClinicianRiskLabel: clinician,
		Notes:              params.Notes,
	}
	if err := s.feedbackStore.Save(ctx, fb); err != nil {
		return errorResult("Failed to save feedback", err), nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"feedback_id": fb.ID,
		"drug":        fb.Drug,
		"agreed":      fb.Agreed,
	}).Info("Clinician feedback recorded")

	verdict := "agrees with"
	if !fb.Agreed {
		verdict = "differs from"
	}
	return textResult(fmt.Sprintf("Feedback %d saved: clinician %s the %s determination for %s",
		fb.ID, verdict, fb.SuggestedRiskLabel, fb.Drug)), fb, nil
}

func (s *LiteServer) handleExportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	count, err := s.feedbackStore.Count(ctx)
	if err != nil {
		return errorResult("Failed to count feedback", err), nil, nil
	}

	path := filepath.Join(s.config.ExportDir(), fmt.Sprintf("feedback-%s.json", time.Now().UTC().Format("20060102-150405")))
	file, err := os.Create(path)
	if err != nil {
		return errorResult("Failed to create export file", err), nil, nil
	}
	defer file.Close()

	if err := s.feedbackStore.ExportJSON(ctx, file); err != nil {
		return errorResult("Failed to export feedback", err), nil, nil
	}

	result := ExportFeedbackResult{Path: path, Count: count}
	return textResult(fmt.Sprintf("Exported %d feedback entries to %s", count, path)), result, nil
}

func summarizeReport(r domain.DrugReport) string {
	p := r.PharmacogenomicProfile
	line := fmt.Sprintf("%s: %s (%s, confidence %.2f)", r.Drug,
		r.RiskAssessment.RiskLabel, r.RiskAssessment.Severity, r.RiskAssessment.ConfidenceScore)
	if p.PrimaryGene != "" {
		line += fmt.Sprintf(" - %s %s %s", p.PrimaryGene, p.Diplotype, p.Phenotype)
	}
	if r.ClinicalRecommendation.Recommendation != "" {
		line += ". " + r.ClinicalRecommendation.Recommendation
	}
	return line
}

func genesText(genes []string) string {
	if len(genes) == 0 {
		return "no supported genes"
	}
	return strings.Join(genes, ", ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult reports a tool failure to the client without failing the call.
func errorResult(message string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)}},
	}
}
