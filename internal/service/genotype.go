package service

import (
	"strconv"
	"strings"

	"github.com/pharmaguard-server/internal/domain"
)

// genotype values that mean the sample carries no variant allele at the site
var absentGenotypes = map[string]bool{
	"0/0": true,
	"./.": true,
	".":   true,
}

// NormalizeGenotype extracts GT from a FORMAT-ordered sample column and
// rewrites phased separators so "0|1" and "0/1" compare equal.
// GT is assumed to be the first colon-delimited field.
func NormalizeGenotype(sampleColumn string) string {
	gt := sampleColumn
	if i := strings.IndexByte(gt, ':'); i >= 0 {
		gt = gt[:i]
	}
	return strings.ReplaceAll(strings.TrimSpace(gt), "|", "/")
}

// IsGenotypePresent reports whether a normalized genotype carries the variant.
// Homozygous reference and missing calls are absent; anything else is present.
func IsGenotypePresent(normalizedGT string) bool {
	return !absentGenotypes[normalizedGT]
}

// ClassifyZygosity derives zygosity from a normalized genotype.
// Unparseable alleles yield ZYGOSITY_UNKNOWN. It is descriptive only and does
// not participate in the presence decision.
func ClassifyZygosity(normalizedGT string) domain.Zygosity {
	if normalizedGT == "" {
		return domain.ZYGOSITY_UNKNOWN
	}

	// haploid
	if !strings.Contains(normalizedGT, "/") {
		if normalizedGT == "." {
			return domain.ZYGOSITY_UNKNOWN
		}
		allele, err := strconv.Atoi(normalizedGT)
		if err != nil || allele < 0 {
			return domain.ZYGOSITY_UNKNOWN
		}
		if allele == 0 {
			return domain.ZYGOSITY_REFERENCE
		}
		return domain.ZYGOSITY_ALTERNATE
	}

	parts := strings.Split(normalizedGT, "/")
	if len(parts) != 2 {
		// TODO: polyploid calls are reported as unknown until a caller needs them
		return domain.ZYGOSITY_UNKNOWN
	}
	left, errLeft := strconv.Atoi(parts[0])
	right, errRight := strconv.Atoi(parts[1])
	if errLeft != nil || errRight != nil {
		return domain.ZYGOSITY_UNKNOWN
	}

	switch {
	case left != right:
		return domain.ZYGOSITY_HETEROZYGOUS
	case left == 0:
		return domain.ZYGOSITY_HOMOZYGOUS_REFERENCE
	default:
		return domain.ZYGOSITY_HOMOZYGOUS_ALTERNATE
	}
}
