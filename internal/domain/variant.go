package domain

// VariantCall is one pharmacogenomically relevant record extracted from a VCF line.
type VariantCall struct {
	Gene            string   `json:"gene"`
	StarAllele      string   `json:"star_allele"`
	Chromosome      string   `json:"chromosome"`
	Position        string   `json:"position"`
	ReferenceAllele string   `json:"ref_allele"`
	AlternateAllele string   `json:"alt_allele"`
	ReferenceID     string   `json:"rsid"`
	FilterStatus    string   `json:"filter_status"`
	Genotype        string   `json:"genotype,omitempty"`
	Zygosity        Zygosity `json:"zygosity,omitempty"`
	GenotypePresent bool     `json:"genotype_present"`
}

// Zygosity describes the allele composition of a called genotype.
type Zygosity string

const (
	ZYGOSITY_UNKNOWN              Zygosity = "UNKNOWN"
	ZYGOSITY_HETEROZYGOUS         Zygosity = "HETEROZYGOUS"
	ZYGOSITY_HOMOZYGOUS_REFERENCE Zygosity = "HOMOZYGOUS_REFERENCE"
	ZYGOSITY_HOMOZYGOUS_ALTERNATE Zygosity = "HOMOZYGOUS_ALTERNATE"
	ZYGOSITY_REFERENCE            Zygosity = "REFERENCE"
	ZYGOSITY_ALTERNATE            Zygosity = "ALTERNATE"
)

// SkipReason classifies why a data line did not produce a VariantCall.
type SkipReason string

const (
	SKIP_MALFORMED_RECORD  SkipReason = "malformed_record"
	SKIP_UNRECOGNIZED_GENE SkipReason = "unrecognized_gene"
	SKIP_GENOTYPE_ABSENT   SkipReason = "genotype_absent"
)

// ParseStats counts the per-line decisions made while parsing.
type ParseStats struct {
	LinesRead         int `json:"lines_read"`
	MetadataLines     int `json:"metadata_lines"`
	DataLines         int `json:"data_lines"`
	MalformedRecords  int `json:"malformed_records"`
	UnrecognizedGenes int `json:"unrecognized_genes"`
	GenotypeAbsent    int `json:"genotype_absent"`
}

// Record increments the counter for a skip decision.
func (s *ParseStats) Record(reason SkipReason) {
	switch reason {
	case SKIP_MALFORMED_RECORD:
		s.MalformedRecords++
	case SKIP_UNRECOGNIZED_GENE:
		s.UnrecognizedGenes++
	case SKIP_GENOTYPE_ABSENT:
		s.GenotypeAbsent++
	}
}

// Skipped returns the total number of data lines that produced no call.
func (s ParseStats) Skipped() int {
	return s.MalformedRecords + s.UnrecognizedGenes + s.GenotypeAbsent
}

// ParseResult is the structured outcome of parsing VCF text.
type ParseResult struct {
	Success            bool                     `json:"vcf_parsing_success"`
	Variants           []VariantCall            `json:"variants"`
	GeneVariants       map[string][]VariantCall `json:"gene_variants"`
	Diplotypes         map[string]string        `json:"diplotypes"`
	Metadata           map[string]string        `json:"metadata"`
	TotalVariantsFound int                      `json:"total_variants_found"`
	GenesDetected      []string                 `json:"genes_detected"`
	Stats              ParseStats               `json:"stats"`
}

// HasGene reports whether at least one call was retained for gene.
func (p *ParseResult) HasGene(gene string) bool {
	return len(p.GeneVariants[gene]) > 0
}

// VariantsFor returns the calls retained for gene in input order.
func (p *ParseResult) VariantsFor(gene string) []VariantCall {
	calls := p.GeneVariants[gene]
	out := make([]VariantCall, len(calls))
	copy(out, calls)
	return out
}
