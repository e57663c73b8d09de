// Package config provides configuration management for GraphMind.
//
// Configuration can be loaded from multiple sources (in order of precedence):
// 1. Environment variables (highest priority)
// 2. A YAML configuration document
// 3. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"graphmind/internal/types"
)

// Config is the complete loaded configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	App      AppConfig      `yaml:"app"`
	Pipeline []PipelineStep `yaml:"pipeline"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// StoreConfig configures the graph repository connection.
type StoreConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// Backend selects the repository implementation: "neo4j" or "sqlite".
	// Default() sets "sqlite"; Validate rejects any other value, empty included.
	Backend string `yaml:"backend"`
	// SQLitePath is the file (or ":memory:") used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
}

// AppConfig configures ambient, non-pipeline application behavior.
type AppConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	LogLevel           string `yaml:"log_level"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	AuthToken          string `yaml:"auth_token"`
	Environment        string `yaml:"environment"`
}

// PipelineStep names one stage of the ordered pipeline and whether it runs.
type PipelineStep struct {
	Name       string `yaml:"name"`
	Enabled    bool   `yaml:"enabled"`
	ModulePath string `yaml:"module_path"`
}

// DefaultsConfig carries every tunable threshold and default the stages and
// orchestrator fall back to when operational params don't override them.
type DefaultsConfig struct {
	InitialConfidence               [4]float64 `yaml:"initial_confidence"`
	InitialLayer                    string     `yaml:"initial_layer"`
	DefaultDisciplinaryTags         []string   `yaml:"default_disciplinary_tags"`
	DefaultDecompositionDimensions  []string   `yaml:"default_decomposition_dimensions"`
	DefaultPlanTypes                []string   `yaml:"default_plan_types"`
	HypothesesPerDimensionMin       int        `yaml:"hypotheses_per_dimension_min"`
	HypothesesPerDimensionMax       int        `yaml:"hypotheses_per_dimension_max"`
	HypothesisConfidence            [4]float64 `yaml:"hypothesis_confidence"`
	DimensionConfidence             [4]float64 `yaml:"dimension_confidence"`
	EvidenceMaxIterations           int        `yaml:"evidence_max_iterations"`
	IBNSimilarityThreshold          float64    `yaml:"ibn_similarity_threshold"`
	MinNodesForHyperedge            int        `yaml:"min_nodes_for_hyperedge"`
	PruningConfidenceThreshold      float64    `yaml:"pruning_confidence_threshold"`
	PruningImpactThreshold          float64    `yaml:"pruning_impact_threshold"`
	PruningEdgeConfidenceThreshold  float64    `yaml:"pruning_edge_confidence_threshold"`
	MergingSemanticOverlapThreshold float64    `yaml:"merging_semantic_overlap_threshold"`
	MergePairScanLimit              int        `yaml:"merge_pair_scan_limit"`
	SubgraphMinConfidenceThreshold  float64    `yaml:"subgraph_min_confidence_threshold"`
	SubgraphMinImpactThreshold      float64    `yaml:"subgraph_min_impact_threshold"`
	HighConfidenceThreshold         float64    `yaml:"high_confidence_threshold"`
	HighImpactThreshold             float64    `yaml:"high_impact_threshold"`
	MinFalsifiableHypothesisRatio   float64    `yaml:"min_falsifiable_hypothesis_ratio"`
	MaxHighSeverityBiasNodes        int        `yaml:"max_high_severity_bias_nodes"`
	MinPoweredEvidenceRatio         float64    `yaml:"min_powered_evidence_ratio"`
	SubgraphExtractionCriteria      []string   `yaml:"subgraph_extraction_criteria"`
	IncludeNeighborsDepth           int        `yaml:"include_neighbors_depth"`
	EvidenceAdapterConcurrency      int        `yaml:"evidence_adapter_concurrency"`
	CheckpointRingSize              int        `yaml:"checkpoint_ring_size"`
	RollbackStackSize               int        `yaml:"rollback_stack_size"`
}

// InitialConfidenceVector converts the raw [4]float64 to a ConfidenceVector.
func (d DefaultsConfig) InitialConfidenceVector() types.ConfidenceVector {
	return toVector(d.InitialConfidence)
}

// HypothesisConfidenceVector converts the raw [4]float64 to a ConfidenceVector.
func (d DefaultsConfig) HypothesisConfidenceVector() types.ConfidenceVector {
	return toVector(d.HypothesisConfidence)
}

// DimensionConfidenceVector converts the raw [4]float64 to a ConfidenceVector.
func (d DefaultsConfig) DimensionConfidenceVector() types.ConfidenceVector {
	return toVector(d.DimensionConfidence)
}

func toVector(a [4]float64) types.ConfidenceVector {
	return types.ConfidenceVector{
		EmpiricalSupport:    a[0],
		TheoreticalBasis:    a[1],
		MethodologicalRigor: a[2],
		ConsensusAlignment:  a[3],
	}
}

// Default returns the baked-in configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			URI:        "neo4j://localhost:7687",
			User:       "neo4j",
			Database:   "neo4j",
			Backend:    "sqlite",
			SQLitePath: ":memory:",
		},
		App: AppConfig{
			Host:        "127.0.0.1",
			Port:        8085,
			LogLevel:    "info",
			Environment: "development",
		},
		Pipeline: []PipelineStep{
			{Name: "initialization", Enabled: true, ModulePath: "internal/stage.Initialization"},
			{Name: "decomposition", Enabled: true, ModulePath: "internal/stage.Decomposition"},
			{Name: "hypothesis", Enabled: true, ModulePath: "internal/stage.Hypothesis"},
			{Name: "evidence", Enabled: true, ModulePath: "internal/stage.Evidence"},
			{Name: "pruning_merging", Enabled: true, ModulePath: "internal/stage.PruningMerging"},
			{Name: "subgraph_extraction", Enabled: true, ModulePath: "internal/stage.SubgraphExtraction"},
			{Name: "composition", Enabled: true, ModulePath: "internal/stage.Composition"},
			{Name: "reflection", Enabled: true, ModulePath: "internal/stage.Reflection"},
		},
		Defaults: DefaultsConfig{
			InitialConfidence:              [4]float64{0.8, 0.8, 0.8, 0.8},
			InitialLayer:                   "default",
			DefaultDisciplinaryTags:        []string{"general"},
			DefaultDecompositionDimensions: []string{"mechanism", "epidemiology", "intervention", "methodology"},
			DefaultPlanTypes:               []string{"literature_review", "experimental_study", "observational_study"},
			HypothesesPerDimensionMin:      2,
			HypothesesPerDimensionMax:      4,
			HypothesisConfidence:           [4]float64{0.5, 0.5, 0.5, 0.5},
			DimensionConfidence:            [4]float64{0.7, 0.7, 0.7, 0.7},
			EvidenceMaxIterations:          5,
			IBNSimilarityThreshold:         0.4,
			MinNodesForHyperedge:           3,
			PruningConfidenceThreshold:     0.2,
			PruningImpactThreshold:         0.2,
			PruningEdgeConfidenceThreshold: 0.15,
			MergingSemanticOverlapThreshold: 0.7,
			MergePairScanLimit:             100,
			SubgraphMinConfidenceThreshold: 0.5,
			SubgraphMinImpactThreshold:     0.5,
			HighConfidenceThreshold:        0.6,
			HighImpactThreshold:            0.6,
			MinFalsifiableHypothesisRatio:  0.5,
			MaxHighSeverityBiasNodes:       3,
			MinPoweredEvidenceRatio:        0.3,
			SubgraphExtractionCriteria:     []string{"high_confidence_core", "key_hypotheses_and_support", "knowledge_gaps_focus"},
			IncludeNeighborsDepth:          2,
			EvidenceAdapterConcurrency:     3,
			CheckpointRingSize:             10,
			RollbackStackSize:              5,
		},
	}
}

// Load loads configuration from environment variables only, applying
// defaults for everything unset.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML document, overlaying
// environment variables, then defaults for anything still unset.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromEnv overrides configuration from environment variables.
// Environment variables follow the pattern GRAPHMIND_<SECTION>_<KEY>.
func (c *Config) loadFromEnv() error {
	if v := os.Getenv("GRAPHMIND_STORE_URI"); v != "" {
		c.Store.URI = v
	}
	if v := os.Getenv("GRAPHMIND_STORE_USER"); v != "" {
		c.Store.User = v
	}
	if v := os.Getenv("GRAPHMIND_STORE_PASSWORD"); v != "" {
		c.Store.Password = v
	}
	if v := os.Getenv("GRAPHMIND_STORE_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("GRAPHMIND_STORE_BACKEND"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("GRAPHMIND_STORE_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}

	if v := os.Getenv("GRAPHMIND_APP_HOST"); v != "" {
		c.App.Host = v
	}
	if v := os.Getenv("GRAPHMIND_APP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.App.Port = n
		}
	}
	if v := os.Getenv("GRAPHMIND_APP_LOG_LEVEL"); v != "" {
		c.App.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("GRAPHMIND_APP_CORS_ALLOWED_ORIGINS"); v != "" {
		c.App.CORSAllowedOrigins = v
	}
	if v := os.Getenv("GRAPHMIND_APP_AUTH_TOKEN"); v != "" {
		c.App.AuthToken = v
	}
	if v := os.Getenv("GRAPHMIND_APP_ENVIRONMENT"); v != "" {
		c.App.Environment = strings.ToLower(v)
	}

	return nil
}

// Validate validates the configuration. In development, a missing store
// password is tolerated (ConfigurationError is fatal only in production).
func (c *Config) Validate() error {
	if c.App.Environment != "development" && c.App.Environment != "staging" && c.App.Environment != "production" {
		return fmt.Errorf("app.environment must be one of: development, staging, production")
	}
	if c.Store.Backend != "neo4j" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("store.backend must be 'neo4j' or 'sqlite'")
	}
	if c.App.Environment == "production" {
		if c.Store.Backend != "neo4j" {
			return fmt.Errorf("store.backend must be 'neo4j' in production")
		}
		if len(c.Store.Password) < 8 || c.Store.Password == "password" {
			return fmt.Errorf("store.password must be at least 8 characters and not the literal 'password'")
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.App.LogLevel] {
		return fmt.Errorf("app.log_level must be one of: debug, info, warn, error")
	}
	if c.Defaults.HypothesesPerDimensionMin < 1 || c.Defaults.HypothesesPerDimensionMax < c.Defaults.HypothesesPerDimensionMin {
		return fmt.Errorf("defaults.hypotheses_per_dimension_min/max are malformed")
	}
	return nil
}

// ToYAML serializes the configuration to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// SaveToFile saves the configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
