package service

import (
	"github.com/pharmaguard-server/internal/domain"
)

// DiplotypeInferencer derives a two-allele diplotype from a gene's calls.
//
// Alleles are taken in the order they were first observed. Zero alleles
// yield the reference diplotype, one distinct allele is reported as
// homozygous, and beyond two distinct alleles only the first two are used.
type DiplotypeInferencer struct {
	reference string
}

// NewDiplotypeInferencer creates an inferencer defaulting to "*1/*1".
func NewDiplotypeInferencer() *DiplotypeInferencer {
	return &DiplotypeInferencer{reference: domain.ReferenceDiplotype}
}

// Infer returns the diplotype for calls belonging to a single gene.
func (d *DiplotypeInferencer) Infer(calls []domain.VariantCall) string {
	alleles := DistinctStarAlleles(calls)
	switch len(alleles) {
	case 0:
		return d.reference
	case 1:
		return domain.FormatDiplotype(alleles[0], alleles[0])
	default:
		return domain.FormatDiplotype(alleles[0], alleles[1])
	}
}

// InferAll infers diplotypes for every gene with at least one call.
func (d *DiplotypeInferencer) InferAll(geneCalls map[string][]domain.VariantCall) map[string]string {
	out := make(map[string]string, len(geneCalls))
	for gene, calls := range geneCalls {
		if len(calls) == 0 {
			continue
		}
		out[gene] = d.Infer(calls)
	}
	return out
}

// DistinctStarAlleles returns non-empty star alleles in first-seen order.
func DistinctStarAlleles(calls []domain.VariantCall) []string {
	seen := make(map[string]bool, len(calls))
	alleles := make([]string, 0, 2)
	for _, c := range calls {
		if c.StarAllele == "" || seen[c.StarAllele] {
			continue
		}
		seen[c.StarAllele] = true
		alleles = append(alleles, c.StarAllele)
	}
	return alleles
}
