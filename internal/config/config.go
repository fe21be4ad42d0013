package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models daybook.yml.
type Config struct {
	Collection struct {
		QuestionTemplate string `yaml:"question_template"`
		Slots            []Slot `yaml:"slots"`
	} `yaml:"collection"`
	Reconcile struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		CategoryThreshold   float64 `yaml:"category_threshold"`
	} `yaml:"reconcile"`
	Retrieval struct {
		MinThreshold float64 `yaml:"min_threshold"`
		MaxThreshold float64 `yaml:"max_threshold"`
		DefaultTopK  int     `yaml:"default_top_k"`
		PoolFactor   int     `yaml:"pool_factor"`
		Smalltalk    bool    `yaml:"smalltalk"`
		// SmalltalkPatterns extends the built-in greeting list. Matching is
		// case-insensitive substring.
		SmalltalkPatterns []string `yaml:"smalltalk_patterns,omitempty"`
	} `yaml:"retrieval"`
	Chunk struct {
		MaxRunes int `yaml:"max_runes"`
	} `yaml:"chunk"`
	KPI struct {
		Keywords []string `yaml:"keywords"`
	} `yaml:"kpi"`
	AI struct {
		EmbedModel        string  `yaml:"embed_model"`
		EmbedTaskType     string  `yaml:"embed_task_type"`
		GenerateModel     string  `yaml:"generate_model"`
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"ai"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig is one event delivery target. An empty Events list means
// every event type.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Slot is one fixed collection window within the workday, HH:MM bounds.
type Slot struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with dbk config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Collection.Slots) == 0 {
		return fmt.Errorf("config.collection.slots is required")
	}
	prevEnd := ""
	for i, s := range c.Collection.Slots {
		if !validClock(s.Start) || !validClock(s.End) {
			return fmt.Errorf("slot %d has invalid bounds %q~%q (want HH:MM)", i, s.Start, s.End)
		}
		if s.Start >= s.End {
			return fmt.Errorf("slot %d start %s is not before end %s", i, s.Start, s.End)
		}
		if s.Start < prevEnd {
			return fmt.Errorf("slot %d overlaps the previous slot", i)
		}
		prevEnd = s.End
	}
	if strings.Count(c.Collection.QuestionTemplate, "%s") != 3 {
		return fmt.Errorf("config.collection.question_template must carry three %%s (date, start, end)")
	}
	if c.Reconcile.SimilarityThreshold <= 0 || c.Reconcile.SimilarityThreshold > 1 {
		return fmt.Errorf("config.reconcile.similarity_threshold must be in (0,1]")
	}
	if c.Reconcile.CategoryThreshold <= 0 || c.Reconcile.CategoryThreshold > c.Reconcile.SimilarityThreshold {
		return fmt.Errorf("config.reconcile.category_threshold must be in (0, similarity_threshold]")
	}
	if c.Retrieval.MinThreshold < 0 || c.Retrieval.MaxThreshold > 1 || c.Retrieval.MinThreshold > c.Retrieval.MaxThreshold {
		return fmt.Errorf("config.retrieval thresholds must satisfy 0 <= min <= max <= 1")
	}
	if c.Retrieval.DefaultTopK < 1 {
		return fmt.Errorf("config.retrieval.default_top_k must be at least 1")
	}
	if c.Retrieval.PoolFactor < 1 {
		return fmt.Errorf("config.retrieval.pool_factor must be at least 1")
	}
	if c.Chunk.MaxRunes < 64 {
		return fmt.Errorf("config.chunk.max_runes must be at least 64")
	}
	if c.AI.EmbedModel == "" || c.AI.GenerateModel == "" {
		return fmt.Errorf("config.ai.embed_model and config.ai.generate_model are required")
	}
	if c.AI.TimeoutSeconds < 1 {
		return fmt.Errorf("config.ai.timeout_seconds must be at least 1")
	}
	if c.AI.RequestsPerSecond <= 0 || c.AI.Burst < 1 {
		return fmt.Errorf("config.ai rate limit needs requests_per_second > 0 and burst >= 1")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

func validClock(v string) bool {
	if len(v) != 5 || v[2] != ':' {
		return false
	}
	hh := v[:2]
	mm := v[3:]
	for _, r := range hh + mm {
		if r < '0' || r > '9' {
			return false
		}
	}
	return hh < "24" && mm < "60"
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "daybook.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `collection:
  question_template: "[%s] %s~%s 시간대에는 어떤 업무를 하셨나요?"
  slots:
    - {start: "09:00", end: "10:00"}
    - {start: "10:00", end: "11:00"}
    - {start: "11:00", end: "12:00"}
    - {start: "13:00", end: "14:00"}
    - {start: "14:00", end: "15:00"}
    - {start: "15:00", end: "16:00"}
    - {start: "16:00", end: "17:00"}
    - {start: "17:00", end: "18:00"}

reconcile:
  similarity_threshold: 0.4
  category_threshold: 0.2

retrieval:
  min_threshold: 0.4
  max_threshold: 0.8
  default_top_k: 5
  pool_factor: 3
  smalltalk: true

chunk:
  max_runes: 480

kpi:
  keywords: [KPI, 실적, 성과, 계약, 매출, 달성, target, quota]

ai:
  embed_model: gemini-embedding-001
  embed_task_type: SEMANTIC_SIMILARITY
  generate_model: gemini-2.5-flash
  timeout_seconds: 60
  requests_per_second: 2.0
  burst: 4

server:
  addr: 127.0.0.1:8799
  base_path: /v0
`
