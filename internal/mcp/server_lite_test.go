package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	litecfg "github.com/pharmaguard-server/internal/config"
	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/feedback"
	"github.com/pharmaguard-server/internal/service"
)

func newTestLiteServer(t *testing.T) *LiteServer {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := &litecfg.LiteConfig{
		DataDir:       filepath.Join(t.TempDir(), "data"),
		CacheMaxItems: 100,
		CacheTTL:      time.Hour,
		Transport:     "stdio",
		LogLevel:      "fatal",
		LogFormat:     "json",
	}

	server, err := NewLiteServer(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewLiteServer(t *testing.T) {
	server := newTestLiteServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.analysis)
	assert.FileExists(t, server.config.FeedbackDBPath())
	assert.DirExists(t, server.config.ExportDir())
	assert.Equal(t, 100, server.Stats().Cap)
}

func TestNewLiteServer_BadKnowledgeBase(t *testing.T) {
	cfg := &litecfg.LiteConfig{
		DataDir:           t.TempDir(),
		CacheMaxItems:     10,
		CacheTTL:          time.Hour,
		KnowledgeBasePath: filepath.Join(t.TempDir(), "missing.yaml"),
	}
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	_, err := NewLiteServer(cfg, WithLogger(logger))
	assert.Error(t, err)
}

func TestWithLogger_Nil(t *testing.T) {
	_, err := NewLiteServer(&litecfg.LiteConfig{DataDir: t.TempDir()}, WithLogger(nil))
	assert.Error(t, err)
}

func TestHandleAnalyzeVCF(t *testing.T) {
	server := newTestLiteServer(t)
	ctx := context.Background()

	result, out, err := server.handleAnalyzeVCF(ctx, nil, AnalyzeVCFParams{
		VCFContent: service.SampleVCF(),
		Drugs:      "codeine, azathioprine",
		PatientID:  "PATIENT_MCP",
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	report, ok := out.(*domain.AnalysisReport)
	require.True(t, ok)
	assert.Equal(t, "PATIENT_MCP", report.PatientID)
	require.Len(t, report.Results, 2)
	assert.Equal(t, domain.RISK_INEFFECTIVE, report.Results[0].RiskAssessment.RiskLabel)
	assert.Equal(t, domain.RISK_SAFE, report.Results[1].RiskAssessment.RiskLabel)

	text := resultText(t, result)
	assert.Contains(t, text, "CODEINE: Ineffective")
	assert.Contains(t, text, "CYP2D6 *4/*4")

	// the second run is served from the explanation cache
	_, _, err = server.handleAnalyzeVCF(ctx, nil, AnalyzeVCFParams{VCFContent: service.SampleVCF(), Drugs: "CODEINE"})
	require.NoError(t, err)
	assert.Positive(t, server.Stats().Hits)
}

func TestHandleAnalyzeVCF_Errors(t *testing.T) {
	server := newTestLiteServer(t)

	tests := []struct {
		name   string
		params AnalyzeVCFParams
		want   string
	}{
		{"missing vcf", AnalyzeVCFParams{Drugs: "CODEINE"}, "vcf_content is required"},
		{"missing drugs", AnalyzeVCFParams{VCFContent: service.SampleVCF()}, "Analysis failed"},
		{"unparseable vcf", AnalyzeVCFParams{VCFContent: "not a vcf", Drugs: "CODEINE"}, "Analysis failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, out, err := server.handleAnalyzeVCF(context.Background(), nil, tt.params)
			require.NoError(t, err)
			assert.Nil(t, out)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestHandleAssessDrugRisk(t *testing.T) {
	server := newTestLiteServer(t)

	result, out, err := server.handleAssessDrugRisk(context.Background(), nil, AssessDrugRiskParams{
		Drug:       "clopidogrel,codeine",
		Diplotypes: map[string]string{"cyp2c19": "*1/*17", " CYP2D6 ": "*4/*1"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	res, ok := out.(AssessDrugRiskResult)
	require.True(t, ok)
	require.Len(t, res.Assessments, 2)
	assert.Equal(t, "CLOPIDOGREL", res.Assessments[0].Drug)
	assert.Equal(t, "Rapid Metabolizer", res.Assessments[0].Phenotype)
	assert.Equal(t, "CODEINE", res.Assessments[1].Drug)
	assert.Equal(t, "Intermediate Metabolizer", res.Assessments[1].Phenotype)

	result, _, err = server.handleAssessDrugRisk(context.Background(), nil, AssessDrugRiskParams{Drug: " , "})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleResolvePhenotype(t *testing.T) {
	server := newTestLiteServer(t)

	tests := []struct {
		name      string
		params    ResolvePhenotypeParams
		wantError bool
		phenotype string
		source    service.PhenotypeSource
	}{
		{"exact", ResolvePhenotypeParams{Gene: "cyp2c19", Diplotype: "*1/*17"}, false, "Rapid Metabolizer", service.PhenotypeExact},
		{"swapped", ResolvePhenotypeParams{Gene: "CYP2D6", Diplotype: "*4/*1"}, false, "Intermediate Metabolizer", service.PhenotypeSwapped},
		{"unsupported gene", ResolvePhenotypeParams{Gene: "BRCA1", Diplotype: "*1/*1"}, false, domain.UnknownPhenotype, service.PhenotypeUnknown},
		{"missing diplotype", ResolvePhenotypeParams{Gene: "CYP2D6"}, true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, out, err := server.handleResolvePhenotype(context.Background(), nil, tt.params)
			require.NoError(t, err)
			if tt.wantError {
				assert.True(t, result.IsError)
				return
			}
			res, ok := out.(service.PhenotypeResult)
			require.True(t, ok)
			assert.Equal(t, tt.phenotype, res.Phenotype)
			assert.Equal(t, tt.source, res.Source)
		})
	}
}

func TestHandleListSupportedDrugs(t *testing.T) {
	server := newTestLiteServer(t)

	result, out, err := server.handleListSupportedDrugs(context.Background(), nil, ListSupportedDrugsParams{})
	require.NoError(t, err)

	res, ok := out.(ListSupportedDrugsResult)
	require.True(t, ok)
	assert.Len(t, res.Drugs, 6)
	assert.Len(t, res.Genes, 7)
	assert.Contains(t, resultText(t, result), "WARFARIN")
}

func TestHandleSubmitAndExportFeedback(t *testing.T) {
	server := newTestLiteServer(t)
	ctx := context.Background()

	result, out, err := server.handleSubmitFeedback(ctx, nil, SubmitFeedbackParams{
		PatientID:          "PATIENT_MCP",
		Drug:               "codeine",
		Diplotype:          "*4/*4",
		Phenotype:          "Poor Metabolizer",
		SuggestedRiskLabel: "ineffective",
		ClinicianRiskLabel: "Toxic",
		Notes:              "prefers non-opioid analgesia",
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	fb, ok := out.(*feedback.Feedback)
	require.True(t, ok)
	assert.Equal(t, "CODEINE", fb.Drug)
	assert.False(t, fb.Agreed)
	assert.Contains(t, resultText(t, result), "differs from")

	result, out, err = server.handleExportFeedback(ctx, nil, ExportFeedbackParams{})
	require.NoError(t, err)
	require.False(t, result.IsError)

	export, ok := out.(ExportFeedbackResult)
	require.True(t, ok)
	assert.Equal(t, int64(1), export.Count)

	data, err := os.ReadFile(export.Path)
	require.NoError(t, err)
	var decoded feedback.FeedbackExport
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Feedback, 1)
	assert.Equal(t, domain.RISK_TOXIC, decoded.Feedback[0].ClinicianRiskLabel)
}

func TestHandleSubmitFeedback_Invalid(t *testing.T) {
	server := newTestLiteServer(t)

	tests := []struct {
		name   string
		params SubmitFeedbackParams
	}{
		{"bad suggested label", SubmitFeedbackParams{PatientID: "P1", Drug: "CODEINE", SuggestedRiskLabel: "maybe", ClinicianRiskLabel: "Safe"}},
		{"bad clinician label", SubmitFeedbackParams{PatientID: "P1", Drug: "CODEINE", SuggestedRiskLabel: "Safe", ClinicianRiskLabel: ""}},
		{"missing patient", SubmitFeedbackParams{Drug: "CODEINE", SuggestedRiskLabel: "Safe", ClinicianRiskLabel: "Safe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, out, err := server.handleSubmitFeedback(context.Background(), nil, tt.params)
			require.NoError(t, err)
			assert.Nil(t, out)
			assert.True(t, result.IsError)
		})
	}
}
