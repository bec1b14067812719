package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/feedback"
	"github.com/pharmaguard-server/internal/middleware"
	"github.com/pharmaguard-server/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// multiDrugResponse is returned when more than one drug was requested.
type multiDrugResponse struct {
	PatientID  string              `json:"patient_id"`
	AnalysisID string              `json:"analysis_id"`
	Results    []domain.DrugReport `json:"results"`
}

type phenotypeRequest struct {
	Gene      string `json:"gene" binding:"required"`
	Diplotype string `json:"diplotype" binding:"required"`
}

type feedbackRequest struct {
	PatientID          string `json:"patient_id" binding:"required"`
	Drug               string `json:"drug" binding:"required"`
	Diplotype          string `json:"diplotype"`
	Phenotype          string `json:"phenotype"`
	SuggestedRiskLabel string `json:"suggested_risk_label" binding:"required"`
	ClinicianRiskLabel string `json:"clinician_risk_label" binding:"required"`
	Notes              string `json:"notes"`
}

func (s *Server) handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "PharmaGuard",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /api/v1/drugs",
			"POST /api/v1/analyze",
			"POST /api/v1/analyze/sample",
			"POST /api/v1/phenotype",
			"GET /api/v1/reports/:id",
			"GET /api/v1/patients/:patient_id/reports",
			"POST /api/v1/feedback",
			"GET /api/v1/feedback",
			"GET /api/v1/feedback/export",
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "healthy"
	}

	body := gin.H{
		"status":          status,
		"timestamp":       time.Now().UTC(),
		"version":         Version,
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
		"supported_drugs": len(s.analysis.KnowledgeBase().SupportedDrugs()),
		"components":      components,
	}
	if v, ok := s.analysis.KnowledgeBase().(interface{ Version() string }); ok {
		body["knowledge_base_version"] = v.Version()
	}
	c.JSON(code, body)
}

func (s *Server) handleListDrugs(c *gin.Context) {
	kb := s.analysis.KnowledgeBase()

	drugs := make([]domain.DrugProfile, 0)
	for _, name := range kb.SupportedDrugs() {
		if profile, ok := kb.Drug(name); ok {
			drugs = append(drugs, profile)
		}
	}

	genes := make([]domain.GeneInfo, 0)
	for _, symbol := range kb.Genes() {
		if info, ok := kb.Gene(symbol); ok {
			genes = append(genes, info)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"drugs": drugs,
		"genes": genes,
	})
}

// handleAnalyze accepts a multipart VCF upload and a comma-separated drug list.
func (s *Server) handleAnalyze(c *gin.Context) {
	maxBytes := s.configManager.GetConfig().Analysis.MaxUploadBytes

	fileHeader, err := c.FormFile("vcf_file")
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "A VCF file is required in the 'vcf_file' field", err.Error())
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".vcf") {
		respondError(c, http.StatusBadRequest, domain.ErrUnsupportedFileType, "Only .vcf files are accepted", fileHeader.Filename)
		return
	}
	if fileHeader.Size > maxBytes {
		respondError(c, http.StatusRequestEntityTooLarge, domain.ErrInvalidInput, "VCF file exceeds the upload limit",
			strconv.FormatInt(maxBytes, 10)+" bytes allowed")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Could not read uploaded file", err.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Could not read uploaded file", err.Error())
		return
	}
	if int64(len(content)) > maxBytes {
		respondError(c, http.StatusRequestEntityTooLarge, domain.ErrInvalidInput, "VCF file exceeds the upload limit",
			strconv.FormatInt(maxBytes, 10)+" bytes allowed")
		return
	}
	if len(bytes.TrimSpace(content)) == 0 {
		respondError(c, http.StatusBadRequest, domain.ErrEmptyUpload, "Uploaded VCF file is empty", "")
		return
	}
	if !utf8.Valid(content) {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidEncoding, "VCF file must be UTF-8 encoded", "")
		return
	}

	drugs := service.NormalizeDrugList([]string{c.PostForm("drugs")})
	if len(drugs) == 0 {
		respondError(c, http.StatusBadRequest, domain.ErrNoDrugs, "At least one drug name is required", "")
		return
	}

	report, err := s.analysis.Analyze(c.Request.Context(), domain.AnalysisRequest{
		PatientID:  c.PostForm("patient_id"),
		VCFContent: string(content),
		Drugs:      drugs,
		RequestID:  c.GetString(middleware.CorrelationIDKey),
	})
	if err != nil {
		respondAnalysisError(c, err)
		return
	}

	s.respondReport(c, report)
}

func (s *Server) handleAnalyzeSample(c *gin.Context) {
	drugs := c.PostForm("drugs")
	if strings.TrimSpace(drugs) == "" {
		drugs = s.configManager.GetConfig().Analysis.SampleDrugs
	}

	report, err := s.analysis.AnalyzeSample(c.Request.Context(), []string{drugs})
	if err != nil {
		respondAnalysisError(c, err)
		return
	}

	s.respondReport(c, report)
}

// respondReport returns a bare DrugReport for single-drug requests.
func (s *Server) respondReport(c *gin.Context, report *domain.AnalysisReport) {
	if len(report.Results) == 1 {
		c.JSON(http.StatusOK, report.Results[0])
		return
	}
	c.JSON(http.StatusOK, multiDrugResponse{
		PatientID:  report.PatientID,
		AnalysisID: report.ID,
		Results:    report.Results,
	})
}

func (s *Server) handlePhenotype(c *gin.Context) {
	var req phenotypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Both 'gene' and 'diplotype' are required", err.Error())
		return
	}

	gene := strings.ToUpper(strings.TrimSpace(req.Gene))
	result := s.analysis.Resolver().Phenotypes().ResolveDetailed(gene, strings.TrimSpace(req.Diplotype))

	c.JSON(http.StatusOK, gin.H{
		"gene":      result.Gene,
		"diplotype": result.Diplotype,
		"phenotype": result.Phenotype,
		"source":    result.Source,
		"supported": s.analysis.KnowledgeBase().IsSupportedGene(gene),
	})
}

func (s *Server) handleGetReport(c *gin.Context) {
	if s.reports == nil {
		respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Report persistence is not enabled", "")
		return
	}

	report, err := s.reports.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondRepositoryError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleListPatientReports(c *gin.Context) {
	if s.reports == nil {
		respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Report persistence is not enabled", "")
		return
	}

	limit, _ := pageParams(c)
	patientID := c.Param("patient_id")
	reports, err := s.reports.ListByPatient(c.Request.Context(), patientID, limit)
	if err != nil {
		s.respondRepositoryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"patient_id": patientID,
		"count":      len(reports),
		"reports":    reports,
	})
}

func (s *Server) respondRepositoryError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Report not found", "")
		return
	}
	s.logger.WithError(err).WithField("correlation_id", c.GetString(middleware.CorrelationIDKey)).Error("Report lookup failed")
	respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Report lookup failed", "")
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	if s.feedback == nil {
		respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Feedback storage is not enabled", "")
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid feedback payload", err.Error())
		return
	}

	suggested, err := domain.ParseRiskLabel(req.SuggestedRiskLabel)
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrValidation, "Unknown risk label", "suggested_risk_label")
		return
	}
	clinician, err := domain.ParseRiskLabel(req.ClinicianRiskLabel)
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrValidation, "Unknown risk label", "clinician_risk_label")
		return
	}

	fb := &feedback.Feedback{
		PatientID:          req.PatientID,
		Drug:               req.Drug,
		Diplotype:          req.Diplotype,
		Phenotype:          req.Phenotype,
		SuggestedRiskLabel: suggested,
		ClinicianRiskLabel: clinician,
		Notes:              req.Notes,
	}
	if err := s.feedback.Save(c.Request.Context(), fb); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			respondError(c, http.StatusBadRequest, domain.ErrValidation, validationErr.Message, validationErr.Field)
			return
		}
		s.logger.WithError(err).Error("Failed to save feedback")
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to save feedback", "")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"feedback_id": fb.ID,
		"drug":        fb.Drug,
		"agreed":      fb.Agreed,
	}).Info("Clinician feedback recorded")

	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if s.feedback == nil {
		respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Feedback storage is not enabled", "")
		return
	}

	limit, offset := pageParams(c)
	ctx := c.Request.Context()

	entries, err := s.feedback.List(ctx, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to list feedback", "")
		return
	}
	total, err := s.feedback.Count(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to count feedback", "")
		return
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	c.JSON(http.StatusOK, gin.H{
		"feedback": entries,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleExportFeedback(c *gin.Context) {
	if s.feedback == nil {
		respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Feedback storage is not enabled", "")
		return
	}

	var buf bytes.Buffer
	if err := s.feedback.ExportJSON(c.Request.Context(), &buf); err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to export feedback", "")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="pharmaguard-feedback.json"`)
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// pageParams reads limit and offset query parameters, clamping bad values.
func pageParams(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
