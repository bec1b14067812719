package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// VCF column layout
const (
	vcfColChrom = iota
	vcfColPos
	vcfColID
	vcfColRef
	vcfColAlt
	vcfColQual
	vcfColFilter
	vcfColInfo
	vcfColFormat
	vcfColFirstSample

	vcfMinColumns = vcfColInfo + 1
)

// INFO keys carrying pharmacogenomic annotations
const (
	InfoKeyGene       = "GENE"
	InfoKeyStarAllele = "STAR"
	InfoKeyRSID       = "RS"
)

const (
	vcfMetaPrefix   = "##"
	vcfHeaderPrefix = "#CHROM"
	vcfMissingValue = "."
)

// InfoField is a parsed VCF INFO column.
type InfoField struct {
	Values map[string]string
	Flags  map[string]bool
}

// Get returns the value for key, or "" when absent.
func (f InfoField) Get(key string) string {
	return f.Values[key]
}

// ParseInfoField splits "K1=V1;FLAG;K2=V2" into values and flags.
// Keys and values are trimmed; a value may itself contain '='.
func ParseInfoField(info string) InfoField {
	field := InfoField{
		Values: make(map[string]string),
		Flags:  make(map[string]bool),
	}
	for _, item := range strings.Split(info, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if k, v, ok := strings.Cut(item, "="); ok {
			field.Values[strings.TrimSpace(k)] = strings.TrimSpace(v)
		} else {
			field.Flags[item] = true
		}
	}
	return field
}

// NormalizeReferenceID prefixes bare numeric dbSNP ids with "rs".
func NormalizeReferenceID(id string) string {
	if id == "" || strings.HasPrefix(id, "rs") {
		return id
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return id
		}
	}
	return "rs" + id
}

// VCFParserService extracts pharmacogenomic variant calls from VCF text.
// Parsing is line-tolerant: lines that cannot contribute a call are counted
// and skipped, never reported as errors.
type VCFParserService struct {
	logger     *logrus.Logger
	geneOrder  []string
	genes      map[string]bool
	inferencer *DiplotypeInferencer
}

var _ domain.VariantParser = (*VCFParserService)(nil)

// NewVCFParserService creates a parser that retains calls for the given genes.
// genes also fixes the order of ParseResult.GenesDetected.
func NewVCFParserService(logger *logrus.Logger, genes []string) *VCFParserService {
	set := make(map[string]bool, len(genes))
	order := make([]string, 0, len(genes))
	for _, g := range genes {
		if g == "" || set[g] {
			continue
		}
		set[g] = true
		order = append(order, g)
	}
	return &VCFParserService{
		logger:     logger,
		geneOrder:  order,
		genes:      set,
		inferencer: NewDiplotypeInferencer(),
	}
}

// Parse reads VCF text and returns the retained calls, per-gene groupings,
// inferred diplotypes and header metadata.
//
// Success is true when at least one line is recognisable VCF (a metadata
// line, the column header, or a record with the mandatory columns). A file
// that is valid but retains no calls still succeeds.
func (p *VCFParserService) Parse(content string) *domain.ParseResult {
	result := &domain.ParseResult{
		Variants:     []domain.VariantCall{},
		GeneVariants: make(map[string][]domain.VariantCall),
		Diplotypes:   make(map[string]string),
		Metadata:     make(map[string]string),
	}

	recognised := false
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		result.Stats.LinesRead++

		if strings.HasPrefix(line, vcfMetaPrefix) {
			recognised = true
			result.Stats.MetadataLines++
			if k, v, ok := strings.Cut(line[len(vcfMetaPrefix):], "="); ok {
				result.Metadata[k] = v
			}
			continue
		}
		if strings.HasPrefix(line, vcfHeaderPrefix) {
			recognised = true
			continue
		}

		result.Stats.DataLines++
		call, reason, ok := p.parseRecord(line)
		if !ok {
			result.Stats.Record(reason)
			if p.logger != nil {
				p.logger.WithFields(logrus.Fields{
					"reason": reason,
					"line":   result.Stats.LinesRead,
				}).Debug("Skipping VCF record")
			}
			if reason != domain.SKIP_MALFORMED_RECORD {
				recognised = true
			}
			continue
		}

		recognised = true
		result.Variants = append(result.Variants, call)
		result.GeneVariants[call.Gene] = append(result.GeneVariants[call.Gene], call)
	}

	for _, gene := range p.geneOrder {
		calls := result.GeneVariants[gene]
		if len(calls) == 0 {
			continue
		}
		result.GenesDetected = append(result.GenesDetected, gene)
		result.Diplotypes[gene] = p.inferencer.Infer(calls)
	}
	if result.GenesDetected == nil {
		result.GenesDetected = []string{}
	}

	result.TotalVariantsFound = len(result.Variants)
	result.Success = recognised

	if p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"variants":       result.TotalVariantsFound,
			"genes_detected": result.GenesDetected,
			"skipped":        result.Stats.Skipped(),
			"success":        result.Success,
		}).Info("VCF parsing completed")
	}

	return result
}

// parseRecord converts one data line into a call, or reports why it was skipped.
func (p *VCFParserService) parseRecord(line string) (domain.VariantCall, domain.SkipReason, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < vcfMinColumns {
		return domain.VariantCall{}, domain.SKIP_MALFORMED_RECORD, false
	}

	info := ParseInfoField(fields[vcfColInfo])
	gene := info.Get(InfoKeyGene)
	if !p.genes[gene] {
		return domain.VariantCall{}, domain.SKIP_UNRECOGNIZED_GENE, false
	}

	rsid := info.Get(InfoKeyRSID)
	if rsid == "" && fields[vcfColID] != vcfMissingValue {
		rsid = fields[vcfColID]
	}

	call := domain.VariantCall{
		Gene:            gene,
		StarAllele:      info.Get(InfoKeyStarAllele),
		Chromosome:      fields[vcfColChrom],
		Position:        fields[vcfColPos],
		ReferenceAllele: fields[vcfColRef],
		AlternateAllele: fields[vcfColAlt],
		ReferenceID:     NormalizeReferenceID(rsid),
		FilterStatus:    fields[vcfColFilter],
		GenotypePresent: true,
	}

	// Without a sample column there is nothing to contradict the record.
	if len(fields) > vcfColFirstSample {
		gt := NormalizeGenotype(fields[vcfColFirstSample])
		call.Genotype = gt
		call.Zygosity = ClassifyZygosity(gt)
		call.GenotypePresent = IsGenotypePresent(gt)
		if !call.GenotypePresent {
			return call, domain.SKIP_GENOTYPE_ABSENT, false
		}
	}

	return call, "", true
}
