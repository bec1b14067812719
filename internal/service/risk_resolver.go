package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/knowledgebase"
)

const (
	unsupportedDrugGuideline = "Consult clinical pharmacist."
)

// RiskResolver turns a drug and a patient's diplotypes into a RiskAssessment.
//
// Precedence: a (primary, secondary) combination entry when the drug has a
// secondary gene and that gene was genotyped, then the primary phenotype entry,
// then the drug's fallback entry. Unsupported drugs resolve to Unknown with
// zero confidence. Resolution never fails.
type RiskResolver struct {
	logger     *logrus.Logger
	kb         domain.KnowledgeBase
	phenotypes *PhenotypeResolver
}

// NewRiskResolver creates a resolver backed by kb.
func NewRiskResolver(logger *logrus.Logger, kb domain.KnowledgeBase) *RiskResolver {
	return &RiskResolver{
		logger:     logger,
		kb:         kb,
		phenotypes: NewPhenotypeResolver(kb),
	}
}

// Phenotypes exposes the resolver's phenotype lookup.
func (r *RiskResolver) Phenotypes() *PhenotypeResolver {
	return r.phenotypes
}

// Resolve assesses drug against diplotypes keyed by gene symbol.
// A missing primary gene is treated as the reference diplotype; a missing
// secondary gene disables the combination lookup.
func (r *RiskResolver) Resolve(drug string, diplotypes map[string]string) domain.RiskAssessment {
	name := domain.NormalizeDrugName(drug)

	profile, ok := r.kb.Drug(name)
	if !ok {
		assessment := unsupportedDrugAssessment(name)
		r.log(&assessment)
		return assessment
	}

	diplotype, ok := diplotypes[profile.PrimaryGene]
	if !ok || diplotype == "" {
		diplotype = domain.ReferenceDiplotype
	}
	phenotype := r.phenotypes.Resolve(profile.PrimaryGene, diplotype)

	assessment := domain.RiskAssessment{
		Drug:        name,
		PrimaryGene: profile.PrimaryGene,
		Diplotype:   diplotype,
		Phenotype:   phenotype,
	}

	if profile.HasSecondaryGene() {
		if secondaryDiplotype, ok := diplotypes[profile.SecondaryGene]; ok && secondaryDiplotype != "" {
			pair := domain.PhenotypePair{
				Primary:   phenotype,
				Secondary: r.phenotypes.Resolve(profile.SecondaryGene, secondaryDiplotype),
			}
			assessment.SecondaryGene = profile.SecondaryGene
			assessment.SecondaryDiplotype = secondaryDiplotype
			assessment.SecondaryPhenotype = pair.Secondary
			assessment.CombinationKey = pair.Key()

			if entry, ok := r.kb.CombinationRisk(name, pair); ok {
				applyEntry(&assessment, entry)
				assessment.ResolutionPath = domain.PATH_COMBINATION
				r.log(&assessment)
				return assessment
			}
		}
	}

	if entry, ok := r.kb.PhenotypeRisk(name, phenotype); ok {
		applyEntry(&assessment, entry)
		assessment.ResolutionPath = domain.PATH_PRIMARY
		r.log(&assessment)
		return assessment
	}

	fallback, ok := r.kb.FallbackRisk(name)
	if !ok {
		fallback = knowledgebase.DefaultFallback
	}
	applyEntry(&assessment, fallback)
	assessment.Recommendation = knowledgebase.RenderFallback(fallback.Recommendation, name, phenotype)
	assessment.GuidelineReference = knowledgebase.RenderFallback(fallback.GuidelineReference, name, phenotype)
	assessment.ResolutionPath = domain.PATH_FALLBACK
	r.log(&assessment)
	return assessment
}

// ResolveAll assesses each drug in order.
func (r *RiskResolver) ResolveAll(drugs []string, diplotypes map[string]string) []domain.RiskAssessment {
	out := make([]domain.RiskAssessment, 0, len(drugs))
	for _, drug := range drugs {
		out = append(out, r.Resolve(drug, diplotypes))
	}
	return out
}

func applyEntry(a *domain.RiskAssessment, e domain.RiskEntry) {
	a.RiskLabel = e.RiskLabel
	a.Severity = e.Severity
	a.ConfidenceScore = e.Confidence
	a.Recommendation = e.Recommendation
	a.GuidelineReference = e.GuidelineReference
}

func unsupportedDrugAssessment(name string) domain.RiskAssessment {
	return domain.RiskAssessment{
		Drug:               name,
		RiskLabel:          domain.RISK_UNKNOWN,
		Severity:           domain.SEVERITY_NONE,
		ConfidenceScore:    0.0,
		Recommendation:     fmt.Sprintf("Drug '%s' is not in our pharmacogenomic database.", name),
		GuidelineReference: unsupportedDrugGuideline,
		Phenotype:          domain.UnknownPhenotype,
		ResolutionPath:     domain.PATH_UNSUPPORTED_DRUG,
	}
}

func (r *RiskResolver) log(a *domain.RiskAssessment) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(logrus.Fields(a.LogFields())).Debug("Risk resolved")
}
