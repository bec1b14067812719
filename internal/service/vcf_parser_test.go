package service

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/knowledgebase"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func testKnowledgeBase(t *testing.T) *knowledgebase.KnowledgeBase {
	t.Helper()
	kb, err := knowledgebase.Default()
	require.NoError(t, err)
	return kb
}

func newTestParser(t *testing.T) *VCFParserService {
	return NewVCFParserService(testLogger(), testKnowledgeBase(t).Genes())
}

// vcf joins tab-separated records under a minimal header.
func vcf(records ...string) string {
	lines := []string{
		"##fileformat=VCFv4.2",
		"##source=unit-test",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSAMPLE",
	}
	return strings.Join(append(lines, records...), "\n") + "\n"
}

func record(fields ...string) string {
	return strings.Join(fields, "\t")
}

func TestParseInfoField(t *testing.T) {
	info := ParseInfoField("GENE=CYP2D6; STAR = *4 ;RS=rs3892097;DB;EXPR=a=b;;")

	assert.Equal(t, "CYP2D6", info.Get("GENE"))
	assert.Equal(t, "*4", info.Get("STAR"))
	assert.Equal(t, "rs3892097", info.Get("RS"))
	assert.Equal(t, "a=b", info.Get("EXPR"))
	assert.True(t, info.Flags["DB"])
	assert.Equal(t, "", info.Get("MISSING"))
}

func TestNormalizeReferenceID(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"rs3892097", "rs3892097"},
		{"3892097", "rs3892097"},
		{"COSM12345", "COSM12345"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.out, NormalizeReferenceID(tt.in))
		})
	}
}

func TestVCFParser_SampleVCF(t *testing.T) {
	parser := newTestParser(t)

	result := parser.Parse(SampleVCF())

	require.True(t, result.Success)
	assert.Equal(t, 6, result.TotalVariantsFound)
	assert.Equal(t, []string{"CYP2D6", "CYP2C19", "CYP2C9", "SLCO1B1", "TPMT", "DPYD"}, result.GenesDetected)
	assert.Equal(t, "VCFv4.2", result.Metadata["fileformat"])
	assert.Equal(t, "*4/*4", result.Diplotypes["CYP2D6"])
	assert.Equal(t, "*2A/*2A", result.Diplotypes["DPYD"])

	first := result.Variants[0]
	assert.Equal(t, domain.VariantCall{
		Gene:            "CYP2D6",
		StarAllele:      "*4",
		Chromosome:      "chr22",
		Position:        "42522613",
		ReferenceAllele: "C",
		AlternateAllele: "T",
		ReferenceID:     "rs3892097",
		FilterStatus:    "PASS",
		GenotypePresent: true,
	}, first)
}

func TestVCFParser_SkipsShortLines(t *testing.T) {
	parser := newTestParser(t)

	content := vcf(
		record("chr22", "42522613", "rs3892097", "C", "T"),
		record("chr22", "42522613", "rs3892097", "C", "T", ".", "PASS", "GENE=CYP2D6;STAR=*4"),
	)
	result := parser.Parse(content)

	require.True(t, result.Success)
	assert.Equal(t, 1, result.TotalVariantsFound)
	assert.Equal(t, 1, result.Stats.MalformedRecords)
	assert.Equal(t, "*4/*4", result.Diplotypes["CYP2D6"])
}

func TestVCFParser_DropsUnrecognizedGenes(t *testing.T) {
	parser := newTestParser(t)

	content := vcf(
		record("chr17", "43045712", ".", "G", "A", ".", "PASS", "GENE=BRCA1;STAR=*1"),
		record("chr1", "100", ".", "G", "A", ".", "PASS", "DP=10"),
	)
	result := parser.Parse(content)

	assert.True(t, result.Success)
	assert.Zero(t, result.TotalVariantsFound)
	assert.Equal(t, 2, result.Stats.UnrecognizedGenes)
	assert.Empty(t, result.GenesDetected)
	assert.Empty(t, result.Diplotypes)
}

func TestVCFParser_GenotypeFilter(t *testing.T) {
	tests := []struct {
		name     string
		sample   string
		retained bool
	}{
		{"heterozygous unphased", "0/1", true},
		{"heterozygous phased", "0|1:35", true},
		{"homozygous alternate", "1/1:99:30,30", true},
		{"homozygous reference", "0/0:99", false},
		{"homozygous reference phased", "0|0", false},
		{"missing diploid", "./.", false},
		{"missing phased", ".|.", false},
		{"missing", ".", false},
		{"haploid reference is not an absent marker", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := newTestParser(t)
			content := vcf(record("chr22", "42522613", "rs3892097", "C", "T", ".", "PASS",
				"GENE=CYP2D6;STAR=*4", "GT:DP", tt.sample))

			result := parser.Parse(content)

			if tt.retained {
				require.Len(t, result.Variants, 1)
				assert.True(t, result.Variants[0].GenotypePresent)
				assert.Equal(t, 0, result.Stats.GenotypeAbsent)
			} else {
				assert.Empty(t, result.Variants)
				assert.Equal(t, 1, result.Stats.GenotypeAbsent)
				assert.NotContains(t, result.Diplotypes, "CYP2D6")
			}
		})
	}
}

func TestVCFParser_NoSampleColumnIsPresent(t *testing.T) {
	parser := newTestParser(t)

	result := parser.Parse(vcf(record("chr6", "18128556", "rs1800462", "G", "A", ".", "PASS", "GENE=TPMT;STAR=*2")))

	require.Len(t, result.Variants, 1)
	assert.True(t, result.Variants[0].GenotypePresent)
	assert.Empty(t, result.Variants[0].Genotype)
}

func TestVCFParser_ReferenceIDFallsBackToIDColumn(t *testing.T) {
	parser := newTestParser(t)

	result := parser.Parse(vcf(
		record("chr6", "18128556", "1800462", "G", "A", ".", "PASS", "GENE=TPMT;STAR=*2"),
		record("chr6", "18130918", ".", "T", "C", ".", "PASS", "GENE=TPMT;STAR=*3A"),
	))

	require.Len(t, result.Variants, 2)
	assert.Equal(t, "rs1800462", result.Variants[0].ReferenceID)
	assert.Equal(t, "", result.Variants[1].ReferenceID)
}

func TestVCFParser_MissingInfoKeysDefaultToEmpty(t *testing.T) {
	parser := newTestParser(t)

	result := parser.Parse(vcf(record("chr22", "42522613", ".", "C", "T", ".", "PASS", "GENE=CYP2D6")))

	require.Len(t, result.Variants, 1)
	assert.Equal(t, "", result.Variants[0].StarAllele)
	assert.Equal(t, "*1/*1", result.Diplotypes["CYP2D6"])
}

func TestVCFParser_EmptyAndGarbageInput(t *testing.T) {
	parser := newTestParser(t)

	empty := parser.Parse("")
	assert.False(t, empty.Success)
	assert.NotNil(t, empty.Variants)
	assert.NotNil(t, empty.GenesDetected)

	garbage := parser.Parse("hello world\nthis is not a vcf")
	assert.False(t, garbage.Success)
	assert.Equal(t, 2, garbage.Stats.MalformedRecords)

	headerOnly := parser.Parse(vcf())
	assert.True(t, headerOnly.Success)
	assert.Zero(t, headerOnly.TotalVariantsFound)
}

func TestVCFParser_HandlesCRLF(t *testing.T) {
	parser := newTestParser(t)

	content := strings.ReplaceAll(vcf(record("chr22", "42522613", "rs3892097", "C", "T", ".", "PASS", "GENE=CYP2D6;STAR=*4")), "\n", "\r\n")
	result := parser.Parse(content)

	require.Len(t, result.Variants, 1)
	assert.Equal(t, "*4", result.Variants[0].StarAllele)
}

func TestVCFParser_GeneOrderFollowsConfiguration(t *testing.T) {
	parser := NewVCFParserService(testLogger(), []string{"TPMT", "CYP2D6", "TPMT", ""})

	result := parser.Parse(vcf(
		record("chr22", "1", ".", "C", "T", ".", "PASS", "GENE=CYP2D6;STAR=*4"),
		record("chr6", "2", ".", "G", "A", ".", "PASS", "GENE=TPMT;STAR=*2"),
	))

	assert.Equal(t, []string{"TPMT", "CYP2D6"}, result.GenesDetected)
}

func TestVCFParser_CallsGroupedInInputOrder(t *testing.T) {
	parser := newTestParser(t)

	result := parser.Parse(vcf(
		record("chr6", "1", "rs1", "G", "A", ".", "PASS", "GENE=TPMT;STAR=*3A"),
		record("chr22", "2", "rs2", "C", "T", ".", "PASS", "GENE=CYP2D6;STAR=*4"),
		record("chr6", "3", "rs3", "G", "A", ".", "PASS", "GENE=TPMT;STAR=*2"),
	))

	tpmt := result.VariantsFor("TPMT")
	require.Len(t, tpmt, 2)
	assert.Equal(t, "rs1", tpmt[0].ReferenceID)
	assert.Equal(t, "rs3", tpmt[1].ReferenceID)
	assert.Equal(t, "*3A/*2", result.Diplotypes["TPMT"])
}

func TestGenotypeHelpers(t *testing.T) {
	tests := []struct {
		sample   string
		gt       string
		present  bool
		zygosity domain.Zygosity
	}{
		{"0/1:12", "0/1", true, domain.ZYGOSITY_HETEROZYGOUS},
		{"1|1", "1/1", true, domain.ZYGOSITY_HOMOZYGOUS_ALTERNATE},
		{"0/0", "0/0", false, domain.ZYGOSITY_HOMOZYGOUS_REFERENCE},
		{"./.:0", "./.", false, domain.ZYGOSITY_UNKNOWN},
		{".", ".", false, domain.ZYGOSITY_UNKNOWN},
		{"1", "1", true, domain.ZYGOSITY_ALTERNATE},
		{"0", "0", true, domain.ZYGOSITY_REFERENCE},
		{"0/1/2", "0/1/2", true, domain.ZYGOSITY_UNKNOWN},
	}

	for _, tt := range tests {
		t.Run(tt.sample, func(t *testing.T) {
			gt := NormalizeGenotype(tt.sample)
			assert.Equal(t, tt.gt, gt)
			assert.Equal(t, tt.present, IsGenotypePresent(gt))
			assert.Equal(t, tt.zygosity, ClassifyZygosity(gt))
		})
	}
}
