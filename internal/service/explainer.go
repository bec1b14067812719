package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/cache"
	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/pkg/external"
)

// GeneratedByRules identifies explanations produced from templates.
const GeneratedByRules = "rule-based-fallback"

const explainerSystemPrompt = "You are a clinical pharmacogenomics expert providing actionable medical guidance."

// RuleBasedExplainer writes deterministic explanations from per-gene and
// per-risk templates. It never fails.
type RuleBasedExplainer struct {
	now func() time.Time
}

// NewRuleBasedExplainer creates a template explainer
func NewRuleBasedExplainer() *RuleBasedExplainer {
	return &RuleBasedExplainer{now: func() time.Time { return time.Now().UTC() }}
}

// Explain implements domain.Explainer
func (e *RuleBasedExplainer) Explain(_ context.Context, req domain.ExplanationRequest) (*domain.Explanation, error) {
	return e.build(req), nil
}

func (e *RuleBasedExplainer) build(req domain.ExplanationRequest) *domain.Explanation {
	variants := "no specific variants detected"
	if ids := req.ReferenceIDs(); len(ids) > 0 {
		variants = strings.Join(ids, ", ")
	}

	summary := fmt.Sprintf(
		"Patient carries the %s diplotype in %s, resulting in %s status. For %s, this translates to a '%s' risk assessment with %s severity. %s",
		req.Diplotype, req.Gene, req.Phenotype, req.Drug, req.RiskLabel, req.Severity, req.Recommendation)

	mechanism := mechanismFor(req, variants)
	implications := clinicalImplications(req.RiskLabel, req.Drug)
	monitoring := monitoringGuidance(req.RiskLabel)

	return &domain.Explanation{
		Summary:              summary,
		Mechanism:            mechanism,
		ClinicalImplications: implications,
		Monitoring:           monitoring,
		FullExplanation: fmt.Sprintf("%s\n\nMechanism: %s\n\nClinical Implications: %s\n\nMonitoring: %s",
			summary, mechanism, implications, monitoring),
		GeneratedBy: GeneratedByRules,
		GeneratedAt: e.now(),
	}
}

func mechanismFor(req domain.ExplanationRequest, variants string) string {
	p := req.Phenotype
	poor := strings.Contains(p, "Poor")
	lower := strings.ToLower(p)

	switch req.Gene {
	case "CYP2D6":
		activity := "normal"
		switch {
		case poor:
			activity = "absent or severely reduced"
		case strings.Contains(p, "Intermediate"):
			activity = "reduced"
		case strings.Contains(p, "Ultra"):
			activity = "increased"
		}
		return fmt.Sprintf("CYP2D6 encodes a key hepatic enzyme responsible for metabolizing %s. The %s diplotype results in %s status, meaning the enzyme activity is %s.",
			req.Drug, req.Diplotype, lower, activity)
	case "CYP2C19":
		effect := "enhances drug metabolism"
		switch {
		case poor:
			effect = "prevents drug activation"
		case strings.Contains(p, "Intermediate"):
			effect = "reduces drug activation"
		}
		return fmt.Sprintf("CYP2C19 is responsible for activating or metabolizing %s. Variant(s) %s result in the %s diplotype, leading to %s status which %s.",
			req.Drug, variants, req.Diplotype, lower, effect)
	case "CYP2C9":
		level := choose(poor, "dangerous", "elevated")
		return fmt.Sprintf("CYP2C9 is the primary enzyme metabolizing %s. The %s diplotype (%s) reduces enzyme activity, causing %s to accumulate to %s levels in the bloodstream.",
			req.Drug, req.Diplotype, variants, req.Drug, level)
	case "SLCO1B1":
		return fmt.Sprintf("SLCO1B1 encodes a hepatic uptake transporter that controls %s uptake into liver cells. The %s diplotype impairs this transporter, reducing %s clearance and increasing systemic exposure with risk of %s muscle toxicity.",
			req.Drug, req.Diplotype, req.Drug, choose(poor, "severe", "moderate"))
	case "TPMT":
		return fmt.Sprintf("TPMT metabolizes %s into inactive metabolites. The %s diplotype (%s) %s TPMT activity, causing toxic metabolites to accumulate and risk %s bone marrow suppression.",
			req.Drug, req.Diplotype, variants, choose(poor, "abolishes", "reduces"), choose(poor, "life-threatening", "significant"))
	case "DPYD":
		return fmt.Sprintf("DPYD is the rate-limiting enzyme in %s catabolism. The %s diplotype (%s) %s DPYD activity, leading to %s accumulation and %s toxicity.",
			req.Drug, req.Diplotype, variants, choose(poor, "severely impairs", "reduces"), req.Drug, choose(poor, "potentially fatal", "serious"))
	case "VKORC1":
		return fmt.Sprintf("VKORC1 encodes the target of %s. The %s diplotype confers %s, so lower doses achieve the therapeutic effect.",
			req.Drug, req.Diplotype, lower)
	case "":
		return fmt.Sprintf("%s has no pharmacogenomic reference data.", req.Drug)
	default:
		return fmt.Sprintf("The %s gene affects %s metabolism. Variant %s results in %s status.",
			req.Gene, req.Drug, req.Diplotype, lower)
	}
}

func clinicalImplications(label domain.RiskLabel, drug string) string {
	switch label {
	case domain.RISK_TOXIC:
		return fmt.Sprintf("This patient is at significant risk of %s-related toxicity. Dose modification or drug substitution is strongly recommended before prescribing.", drug)
	case domain.RISK_INEFFECTIVE:
		return fmt.Sprintf("%s is unlikely to provide therapeutic benefit for this patient due to impaired drug activation or metabolism. An alternative therapy should be considered.", drug)
	case domain.RISK_ADJUST_DOSAGE:
		return fmt.Sprintf("Standard dosing of %s may not be appropriate. A dose adjustment based on the patient's metabolizer status is recommended to optimize efficacy and minimize harm.", drug)
	case domain.RISK_SAFE:
		return fmt.Sprintf("This patient is expected to respond normally to standard %s dosing. No pharmacogenomic-based dose adjustments are necessary.", drug)
	case domain.RISK_UNKNOWN:
		return "Insufficient evidence exists to make a pharmacogenomic recommendation for this drug-gene combination."
	default:
		return "Consult clinical pharmacist."
	}
}

func monitoringGuidance(label domain.RiskLabel) string {
	switch label {
	case domain.RISK_TOXIC:
		return "Monitor closely for signs of drug toxicity. Consider therapeutic drug monitoring if available."
	case domain.RISK_INEFFECTIVE:
		return "Monitor for lack of therapeutic response. Consider switching to an alternative medication."
	case domain.RISK_ADJUST_DOSAGE:
		return "Monitor drug levels and clinical response after dose adjustment. Titrate based on therapeutic targets."
	case domain.RISK_SAFE:
		return "Routine clinical monitoring per standard of care."
	case domain.RISK_UNKNOWN:
		return "Standard clinical monitoring. Consult clinical pharmacist for additional guidance."
	default:
		return "Standard monitoring."
	}
}

func choose(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

// Completer is the subset of the LLM client the explainer needs.
type Completer interface {
	Complete(ctx context.Context, messages []external.ChatMessage) (string, error)
	Model() string
}

// LLMExplainer asks a language model for the narrative and falls back to
// templates, with the failure recorded, whenever the model cannot answer.
type LLMExplainer struct {
	client   Completer
	fallback *RuleBasedExplainer
	logger   *logrus.Logger
}

// NewLLMExplainer creates an explainer backed by client
func NewLLMExplainer(client Completer, logger *logrus.Logger) *LLMExplainer {
	return &LLMExplainer{
		client:   client,
		fallback: NewRuleBasedExplainer(),
		logger:   logger,
	}
}

// Explain implements domain.Explainer
func (e *LLMExplainer) Explain(ctx context.Context, req domain.ExplanationRequest) (*domain.Explanation, error) {
	text, err := e.client.Complete(ctx, []external.ChatMessage{
		{Role: "system", Content: explainerSystemPrompt},
		{Role: "user", Content: BuildExplanationPrompt(req)},
	})
	if err != nil {
		if e.logger != nil {
			e.logger.WithError(err).WithField("drug", req.Drug).Warn("LLM explanation failed, using rule-based fallback")
		}
		exp := e.fallback.build(req)
		exp.Error = err.Error()
		return exp, nil
	}

	text = strings.TrimSpace(text)
	lines := strings.Split(text, "\n")
	summary := strings.TrimSpace(lines[0])

	return &domain.Explanation{
		Summary:              summary,
		Mechanism:            ExtractSection(text, "mechanism", "biological"),
		ClinicalImplications: ExtractSection(text, "clinical implications", "implications"),
		Monitoring:           ExtractSection(text, "monitoring", "watch"),
		FullExplanation:      text,
		GeneratedBy:          e.client.Model(),
		GeneratedAt:          time.Now().UTC(),
	}, nil
}

// BuildExplanationPrompt renders the user prompt for a determination.
func BuildExplanationPrompt(req domain.ExplanationRequest) string {
	variants := "none detected"
	if ids := req.ReferenceIDs(); len(ids) > 0 {
		variants = strings.Join(ids, ", ")
	}

	var b strings.Builder
	b.WriteString("You are a clinical pharmacogenomics expert. Generate a concise clinical explanation for the following:\n\n")
	b.WriteString("Patient Pharmacogenomic Data:\n")
	fmt.Fprintf(&b, "- Drug: %s\n", req.Drug)
	fmt.Fprintf(&b, "- Primary Gene: %s\n", req.Gene)
	fmt.Fprintf(&b, "- Diplotype: %s\n", req.Diplotype)
	fmt.Fprintf(&b, "- Phenotype: %s\n", req.Phenotype)
	fmt.Fprintf(&b, "- Risk Assessment: %s (Severity: %s)\n", req.RiskLabel, req.Severity)
	fmt.Fprintf(&b, "- Detected Variants: %s\n", variants)
	fmt.Fprintf(&b, "- Clinical Recommendation: %s\n\n", req.Recommendation)
	b.WriteString("Please provide:\n")
	b.WriteString("1. A brief summary (2-3 sentences) explaining why this patient has this risk\n")
	b.WriteString("2. The biological mechanism (how this gene variant affects drug metabolism)\n")
	b.WriteString("3. Clinical implications for this specific patient\n")
	b.WriteString("4. Any monitoring parameters the clinician should watch\n\n")
	b.WriteString("Be specific, cite the variants and diplotype in your explanation. Use clear, professional medical language.")
	return b.String()
}

// ExtractSection returns the paragraph (at most three lines) following the
// first line that mentions any keyword, case-insensitively.
func ExtractSection(text string, keywords ...string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lowered := strings.ToLower(line)
		matched := false
		for _, kw := range keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		var collected []string
		for j := i + 1; j < len(lines) && j < i+4; j++ {
			s := strings.TrimSpace(lines[j])
			if s == "" {
				if len(collected) > 0 {
					break
				}
				continue
			}
			collected = append(collected, s)
		}
		if len(collected) > 0 {
			return strings.Join(collected, " ")
		}
	}
	return ""
}

// ExplanationStore is a shared cache for explanations, e.g. Redis.
type ExplanationStore interface {
	GetExplanation(ctx context.Context, key string) (*domain.Explanation, bool, error)
	SetExplanation(ctx context.Context, key string, explanation *domain.Explanation, ttl time.Duration) error
}

// CachingExplainer memoises another explainer in the process-local LRU and,
// when configured, a shared store. Fallback explanations carrying an error
// are not cached so a recovered provider is used on the next request.
type CachingExplainer struct {
	inner  domain.Explainer
	memory *cache.MemoryCache
	shared ExplanationStore
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachingExplainer wraps inner. memory and shared may each be nil.
func NewCachingExplainer(inner domain.Explainer, memory *cache.MemoryCache, shared ExplanationStore, ttl time.Duration, logger *logrus.Logger) *CachingExplainer {
	return &CachingExplainer{
		inner:  inner,
		memory: memory,
		shared: shared,
		ttl:    ttl,
		logger: logger,
	}
}

// Explain implements domain.Explainer
func (c *CachingExplainer) Explain(ctx context.Context, req domain.ExplanationRequest) (*domain.Explanation, error) {
	key := external.ExplanationCacheKey(req)

	if c.memory != nil {
		if exp, ok := c.memory.Get(key); ok {
			return exp, nil
		}
	}
	if c.shared != nil {
		exp, ok, err := c.shared.GetExplanation(ctx, key)
		if err != nil && c.logger != nil {
			c.logger.WithError(err).Warn("Shared explanation cache lookup failed")
		}
		if ok && exp != nil {
			if c.memory != nil {
				c.memory.Set(key, exp)
			}
			return exp, nil
		}
	}

	exp, err := c.inner.Explain(ctx, req)
	if err != nil {
		return nil, err
	}
	if exp.Error != "" {
		return exp, nil
	}

	if c.memory != nil {
		c.memory.Set(key, exp)
	}
	if c.shared != nil {
		if err := c.shared.SetExplanation(ctx, key, exp, c.ttl); err != nil && c.logger != nil {
			c.logger.WithError(err).Warn("Failed to store explanation in shared cache")
		}
	}
	return exp, nil
}
