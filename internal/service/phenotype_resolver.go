package service

import (
	"github.com/pharmaguard-server/internal/domain"
)

// PhenotypeSource records which rule produced a phenotype.
type PhenotypeSource string

const (
	PhenotypeExact   PhenotypeSource = "exact"
	PhenotypeSwapped PhenotypeSource = "swapped"
	PhenotypeDefault PhenotypeSource = "gene_default"
	PhenotypeUnknown PhenotypeSource = "unknown"
)

// PhenotypeResult is a resolved phenotype with its provenance.
type PhenotypeResult struct {
	Gene      string          `json:"gene"`
	Diplotype string          `json:"diplotype"`
	Phenotype string          `json:"phenotype"`
	Source    PhenotypeSource `json:"source"`
}

// PhenotypeResolver maps (gene, diplotype) to a phenotype label.
//
// Lookup order is exact match, then the diplotype with its alleles swapped,
// then the gene's default, then "Unknown" for genes without a table.
type PhenotypeResolver struct {
	kb domain.KnowledgeBase
}

// NewPhenotypeResolver creates a resolver over kb.
func NewPhenotypeResolver(kb domain.KnowledgeBase) *PhenotypeResolver {
	return &PhenotypeResolver{kb: kb}
}

// Resolve returns only the phenotype label.
func (r *PhenotypeResolver) Resolve(gene, diplotype string) string {
	return r.ResolveDetailed(gene, diplotype).Phenotype
}

// ResolveDetailed returns the phenotype together with the rule that matched.
func (r *PhenotypeResolver) ResolveDetailed(gene, diplotype string) PhenotypeResult {
	result := PhenotypeResult{Gene: gene, Diplotype: diplotype}

	if phenotype, ok := r.kb.LookupPhenotype(gene, diplotype); ok {
		result.Phenotype, result.Source = phenotype, PhenotypeExact
		return result
	}

	if first, second, ok := domain.SplitDiplotype(diplotype); ok {
		if phenotype, ok := r.kb.LookupPhenotype(gene, domain.FormatDiplotype(second, first)); ok {
			result.Phenotype, result.Source = phenotype, PhenotypeSwapped
			return result
		}
	}

	if phenotype, ok := r.kb.DefaultPhenotype(gene); ok {
		result.Phenotype, result.Source = phenotype, PhenotypeDefault
		return result
	}

	result.Phenotype, result.Source = domain.UnknownPhenotype, PhenotypeUnknown
	return result
}
