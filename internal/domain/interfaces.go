package domain

import (
	"context"
	"time"
)

// KnowledgeBase is read-only access to the gene and drug reference tables.
type KnowledgeBase interface {
	Genes() []string
	IsSupportedGene(symbol string) bool
	Gene(symbol string) (GeneInfo, bool)
	LookupPhenotype(gene, diplotype string) (string, bool)
	DefaultPhenotype(gene string) (string, bool)
	Drug(name string) (DrugProfile, bool)
	SupportedDrugs() []string
	PhenotypeRisk(drug, phenotype string) (RiskEntry, bool)
	CombinationRisk(drug string, pair PhenotypePair) (RiskEntry, bool)
	FallbackRisk(drug string) (RiskEntry, bool)
}

// VariantParser turns VCF text into pharmacogenomic variant calls
type VariantParser interface {
	Parse(content string) *ParseResult
}

// Explainer produces narrative explanations for a finished determination.
// It never influences the determination itself.
type Explainer interface {
	Explain(ctx context.Context, req ExplanationRequest) (*Explanation, error)
}

// ReportRepository defines the interface for analysis report persistence
type ReportRepository interface {
	SaveReport(ctx context.Context, report *AnalysisReport) error
	GetReport(ctx context.Context, id string) (*AnalysisReport, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]*AnalysisReport, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetExplainerConfig() *ExplainerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
