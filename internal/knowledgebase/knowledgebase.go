// Package knowledgebase holds the static gene and drug reference tables used to
// translate diplotypes into phenotypes and phenotypes into drug risk.
//
// Tables are authored in YAML. A default copy is embedded in the binary and an
// alternative file can be supplied at startup. Once loaded a KnowledgeBase is
// immutable and safe for concurrent use.
package knowledgebase

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pharmaguard-server/internal/domain"
)

//go:embed data/cpic.yaml
var embeddedTables []byte

// placeholders understood in fallback recommendations
const (
	PlaceholderDrug      = "{drug}"
	PlaceholderPhenotype = "{phenotype}"
)

// DefaultFallback is used for drugs whose tables do not author their own fallback.
var DefaultFallback = domain.RiskEntry{
	RiskLabel:          domain.RISK_UNKNOWN,
	Severity:           domain.SEVERITY_NONE,
	Confidence:         0.5,
	Recommendation:     "Insufficient pharmacogenomic data for {drug} with phenotype '{phenotype}'.",
	GuidelineReference: "Consult clinical pharmacist for guidance.",
}

type document struct {
	Version string    `yaml:"version"`
	Source  string    `yaml:"source"`
	Genes   []geneDoc `yaml:"genes"`
	Drugs   []drugDoc `yaml:"drugs"`
}

type geneDoc struct {
	Symbol      string            `yaml:"symbol"`
	Axis        string            `yaml:"axis"`
	Description string            `yaml:"description"`
	Reference   string            `yaml:"reference_diplotype"`
	Default     string            `yaml:"default"`
	Diplotypes  map[string]string `yaml:"diplotypes"`
}

type riskDoc struct {
	RiskLabel      string  `yaml:"risk_label"`
	Severity       string  `yaml:"severity"`
	Confidence     float64 `yaml:"confidence"`
	Recommendation string  `yaml:"recommendation"`
	Guideline      string  `yaml:"guideline"`
}

type combinationDoc struct {
	Primary   string  `yaml:"primary"`
	Secondary string  `yaml:"secondary"`
	Risk      riskDoc `yaml:",inline"`
}

type drugDoc struct {
	Name          string             `yaml:"name"`
	PrimaryGene   string             `yaml:"primary_gene"`
	SecondaryGene string             `yaml:"secondary_gene"`
	Description   string             `yaml:"description"`
	Phenotypes    map[string]riskDoc `yaml:"phenotypes"`
	Combinations  []combinationDoc   `yaml:"combinations"`
	Fallback      *riskDoc           `yaml:"fallback"`
}

func (r riskDoc) entry() domain.RiskEntry {
	return domain.RiskEntry{
		RiskLabel:          domain.RiskLabel(strings.TrimSpace(r.RiskLabel)),
		Severity:           domain.Severity(strings.ToLower(strings.TrimSpace(r.Severity))),
		Confidence:         r.Confidence,
		Recommendation:     strings.TrimSpace(r.Recommendation),
		GuidelineReference: strings.TrimSpace(r.Guideline),
	}
}

type geneTable struct {
	info       domain.GeneInfo
	phenotypes map[string]string
}

type drugTable struct {
	profile      domain.DrugProfile
	phenotypes   map[string]domain.RiskEntry
	combinations map[domain.PhenotypePair]domain.RiskEntry
	fallback     domain.RiskEntry
}

// KnowledgeBase is an immutable, validated set of reference tables.
type KnowledgeBase struct {
	version   string
	source    string
	geneOrder []string
	genes     map[string]*geneTable
	drugOrder []string
	drugs     map[string]*drugTable
}

var _ domain.KnowledgeBase = (*KnowledgeBase)(nil)

var (
	defaultOnce sync.Once
	defaultKB   *KnowledgeBase
	defaultErr  error
)

// Default returns the tables embedded in the binary. The document is parsed once.
func Default() (*KnowledgeBase, error) {
	defaultOnce.Do(func() {
		defaultKB, defaultErr = Load(embeddedTables)
	})
	return defaultKB, defaultErr
}

// LoadFile reads and validates tables from a YAML file.
func LoadFile(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	kb, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("knowledge base %s: %w", path, err)
	}
	return kb, nil
}

// Open returns the tables at path, or the embedded tables when path is empty.
func Open(path string) (*KnowledgeBase, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	return LoadFile(path)
}

// Load parses and validates a YAML document.
func Load(data []byte) (*KnowledgeBase, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	return build(&doc)
}

func build(doc *document) (*KnowledgeBase, error) {
	if len(doc.Genes) == 0 {
		return nil, fmt.Errorf("knowledge base defines no genes")
	}

	kb := &KnowledgeBase{
		version: doc.Version,
		source:  doc.Source,
		genes:   make(map[string]*geneTable, len(doc.Genes)),
		drugs:   make(map[string]*drugTable, len(doc.Drugs)),
	}

	for _, g := range doc.Genes {
		table, err := buildGene(g)
		if err != nil {
			return nil, err
		}
		if _, dup := kb.genes[table.info.Symbol]; dup {
			return nil, fmt.Errorf("gene %s defined more than once", table.info.Symbol)
		}
		kb.genes[table.info.Symbol] = table
		kb.geneOrder = append(kb.geneOrder, table.info.Symbol)
	}

	for _, d := range doc.Drugs {
		table, err := kb.buildDrug(d)
		if err != nil {
			return nil, err
		}
		if _, dup := kb.drugs[table.profile.Name]; dup {
			return nil, fmt.Errorf("drug %s defined more than once", table.profile.Name)
		}
		kb.drugs[table.profile.Name] = table
		kb.drugOrder = append(kb.drugOrder, table.profile.Name)
	}

	return kb, nil
}

func buildGene(g geneDoc) (*geneTable, error) {
	symbol := strings.TrimSpace(g.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("gene entry without symbol")
	}
	axis := domain.PhenotypeAxis(strings.ToLower(strings.TrimSpace(g.Axis)))
	if !axis.IsValid() {
		return nil, fmt.Errorf("gene %s: %w: %q", symbol, domain.ErrInvalidAxis, g.Axis)
	}
	def := strings.TrimSpace(g.Default)
	if def == "" {
		return nil, fmt.Errorf("gene %s: default phenotype is required", symbol)
	}
	reference := strings.TrimSpace(g.Reference)
	if reference == "" {
		reference = domain.ReferenceDiplotype
	}

	phenotypes := make(map[string]string, len(g.Diplotypes))
	for diplotype, phenotype := range g.Diplotypes {
		if _, _, ok := domain.SplitDiplotype(diplotype); !ok {
			return nil, fmt.Errorf("gene %s: malformed diplotype %q", symbol, diplotype)
		}
		if strings.TrimSpace(phenotype) == "" {
			return nil, fmt.Errorf("gene %s: diplotype %s has no phenotype", symbol, diplotype)
		}
		phenotypes[diplotype] = strings.TrimSpace(phenotype)
	}

	return &geneTable{
		info: domain.GeneInfo{
			Symbol:             symbol,
			Axis:               axis,
			ReferenceDiplotype: reference,
			DefaultPhenotype:   def,
			Description:        strings.TrimSpace(g.Description),
		},
		phenotypes: phenotypes,
	}, nil
}

func (kb *KnowledgeBase) buildDrug(d drugDoc) (*drugTable, error) {
	name := domain.NormalizeDrugName(d.Name)
	if name == "" {
		return nil, fmt.Errorf("drug entry without name")
	}
	primary := strings.TrimSpace(d.PrimaryGene)
	if _, ok := kb.genes[primary]; !ok {
		return nil, fmt.Errorf("drug %s: primary gene %q is not defined", name, d.PrimaryGene)
	}
	secondary := strings.TrimSpace(d.SecondaryGene)
	if secondary != "" {
		if _, ok := kb.genes[secondary]; !ok {
			return nil, fmt.Errorf("drug %s: secondary gene %q is not defined", name, d.SecondaryGene)
		}
		if secondary == primary {
			return nil, fmt.Errorf("drug %s: secondary gene repeats primary gene %s", name, primary)
		}
	}

	table := &drugTable{
		profile: domain.DrugProfile{
			Name:          name,
			PrimaryGene:   primary,
			SecondaryGene: secondary,
			Description:   strings.TrimSpace(d.Description),
		},
		phenotypes:   make(map[string]domain.RiskEntry, len(d.Phenotypes)),
		combinations: make(map[domain.PhenotypePair]domain.RiskEntry, len(d.Combinations)),
		fallback:     DefaultFallback,
	}

	for phenotype, r := range d.Phenotypes {
		entry := r.entry()
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("drug %s phenotype %q: %w", name, phenotype, err)
		}
		table.phenotypes[strings.TrimSpace(phenotype)] = entry
	}

	if len(d.Combinations) > 0 && secondary == "" {
		return nil, fmt.Errorf("drug %s: combination entries require a secondary gene", name)
	}
	for _, c := range d.Combinations {
		pair := domain.PhenotypePair{
			Primary:   strings.TrimSpace(c.Primary),
			Secondary: strings.TrimSpace(c.Secondary),
		}
		if pair.Primary == "" || pair.Secondary == "" {
			return nil, fmt.Errorf("drug %s: combination entry needs both phenotypes", name)
		}
		if _, dup := table.combinations[pair]; dup {
			return nil, fmt.Errorf("drug %s: combination %s defined more than once", name, pair.Key())
		}
		entry := c.Risk.entry()
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("drug %s combination %s: %w", name, pair.Key(), err)
		}
		table.combinations[pair] = entry
	}

	if d.Fallback != nil {
		entry := d.Fallback.entry()
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("drug %s fallback: %w", name, err)
		}
		table.fallback = entry
	}

	return table, nil
}

// Version returns the table version declared in the document.
func (kb *KnowledgeBase) Version() string { return kb.version }

// Source returns the guideline source declared in the document.
func (kb *KnowledgeBase) Source() string { return kb.source }

// Genes returns supported gene symbols in declaration order.
func (kb *KnowledgeBase) Genes() []string {
	out := make([]string, len(kb.geneOrder))
	copy(out, kb.geneOrder)
	return out
}

// IsSupportedGene reports whether symbol has a phenotype table.
func (kb *KnowledgeBase) IsSupportedGene(symbol string) bool {
	_, ok := kb.genes[symbol]
	return ok
}

// Gene returns descriptive information about a supported gene.
func (kb *KnowledgeBase) Gene(symbol string) (domain.GeneInfo, bool) {
	g, ok := kb.genes[symbol]
	if !ok {
		return domain.GeneInfo{}, false
	}
	return g.info, true
}

// LookupPhenotype returns the phenotype authored for an exact diplotype.
func (kb *KnowledgeBase) LookupPhenotype(gene, diplotype string) (string, bool) {
	g, ok := kb.genes[gene]
	if !ok {
		return "", false
	}
	phenotype, ok := g.phenotypes[diplotype]
	return phenotype, ok
}

// DefaultPhenotype returns the gene's phenotype for unlisted diplotypes.
func (kb *KnowledgeBase) DefaultPhenotype(gene string) (string, bool) {
	g, ok := kb.genes[gene]
	if !ok {
		return "", false
	}
	return g.info.DefaultPhenotype, true
}

// PhenotypeTable returns a copy of a gene's diplotype to phenotype table.
func (kb *KnowledgeBase) PhenotypeTable(gene string) map[string]string {
	g, ok := kb.genes[gene]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(g.phenotypes))
	for k, v := range g.phenotypes {
		out[k] = v
	}
	return out
}

// Drug returns the profile for a drug. The name is normalized before lookup.
func (kb *KnowledgeBase) Drug(name string) (domain.DrugProfile, bool) {
	d, ok := kb.drugs[domain.NormalizeDrugName(name)]
	if !ok {
		return domain.DrugProfile{}, false
	}
	return d.profile, true
}

// SupportedDrugs returns drug names in declaration order.
func (kb *KnowledgeBase) SupportedDrugs() []string {
	out := make([]string, len(kb.drugOrder))
	copy(out, kb.drugOrder)
	return out
}

// Drugs returns all drug profiles sorted by name.
func (kb *KnowledgeBase) Drugs() []domain.DrugProfile {
	out := make([]domain.DrugProfile, 0, len(kb.drugs))
	for _, d := range kb.drugs {
		out = append(out, d.profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PhenotypeRisk returns the single-phenotype risk entry for a drug.
func (kb *KnowledgeBase) PhenotypeRisk(drug, phenotype string) (domain.RiskEntry, bool) {
	d, ok := kb.drugs[domain.NormalizeDrugName(drug)]
	if !ok {
		return domain.RiskEntry{}, false
	}
	entry, ok := d.phenotypes[phenotype]
	return entry, ok
}

// CombinationRisk returns the two-gene risk entry for a drug.
func (kb *KnowledgeBase) CombinationRisk(drug string, pair domain.PhenotypePair) (domain.RiskEntry, bool) {
	d, ok := kb.drugs[domain.NormalizeDrugName(drug)]
	if !ok {
		return domain.RiskEntry{}, false
	}
	entry, ok := d.combinations[pair]
	return entry, ok
}

// FallbackRisk returns the drug's entry for unmatched phenotypes.
func (kb *KnowledgeBase) FallbackRisk(drug string) (domain.RiskEntry, bool) {
	d, ok := kb.drugs[domain.NormalizeDrugName(drug)]
	if !ok {
		return domain.RiskEntry{}, false
	}
	return d.fallback, true
}

// RenderFallback substitutes drug and phenotype placeholders in a fallback text.
func RenderFallback(text, drug, phenotype string) string {
	r := strings.NewReplacer(PlaceholderDrug, drug, PlaceholderPhenotype, phenotype)
	return r.Replace(text)
}
