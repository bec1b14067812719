package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pharmaguard-server/internal/domain"
)

func calls(alleles ...string) []domain.VariantCall {
	out := make([]domain.VariantCall, 0, len(alleles))
	for _, a := range alleles {
		out = append(out, domain.VariantCall{Gene: "TPMT", StarAllele: a})
	}
	return out
}

func TestDiplotypeInferencer_Infer(t *testing.T) {
	inferencer := NewDiplotypeInferencer()

	tests := []struct {
		name     string
		alleles  []string
		expected string
	}{
		{"no calls", nil, "*1/*1"},
		{"only empty alleles", []string{"", ""}, "*1/*1"},
		{"single allele is homozygous", []string{"*4"}, "*4/*4"},
		{"repeated allele is homozygous", []string{"*4", "*4"}, "*4/*4"},
		{"two alleles keep input order", []string{"*3A", "*2"}, "*3A/*2"},
		{"empty allele ignored", []string{"", "*2", "*3A"}, "*2/*3A"},
		{"extra alleles dropped", []string{"*2", "*3A", "*3C"}, "*2/*3A"},
		{"duplicates before second distinct", []string{"*2", "*2", "*3C"}, "*2/*3C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, inferencer.Infer(calls(tt.alleles...)))
		})
	}
}

func TestDiplotypeInferencer_InferAll(t *testing.T) {
	inferencer := NewDiplotypeInferencer()

	result := inferencer.InferAll(map[string][]domain.VariantCall{
		"TPMT":   calls("*3A", "*2"),
		"CYP2D6": {{Gene: "CYP2D6", StarAllele: "*4"}},
		"DPYD":   {},
	})

	assert.Equal(t, map[string]string{
		"TPMT":   "*3A/*2",
		"CYP2D6": "*4/*4",
	}, result)
}

func TestDistinctStarAlleles(t *testing.T) {
	assert.Empty(t, DistinctStarAlleles(nil))
	assert.Equal(t, []string{"*2", "*3A", "*3C"}, DistinctStarAlleles(calls("*2", "", "*3A", "*2", "*3C")))
}
