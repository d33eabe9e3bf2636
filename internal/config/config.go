// Package config loads runtime settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// BookConfig names the default chapter to work on.
type BookConfig struct {
	BaseURL    string `yaml:"base_url"`
	Slug       string `yaml:"slug"`
	BookNum    int    `yaml:"book_num"`
	ChapterNum int    `yaml:"chapter_num"`
}

// PromptsConfig controls the adaptive prompt store and selector.
type PromptsConfig struct {
	File             string  `yaml:"file"`
	ExplorationRate  float64 `yaml:"exploration_rate"`
	LearningRate     float64 `yaml:"learning_rate"`
	MinScore         float64 `yaml:"min_score"`
	MaxScore         float64 `yaml:"max_score"`
	ExcludeThreshold float64 `yaml:"exclude_threshold"`
	// Seed makes selection reproducible when non-zero.
	Seed uint64 `yaml:"seed"`
}

// RoleConfig selects the model for one generation role.
type RoleConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ModelsConfig assigns a model to every generation role.
type ModelsConfig struct {
	Rewrite     RoleConfig `yaml:"rewrite"`
	Review      RoleConfig `yaml:"review"`
	Summarize   RoleConfig `yaml:"summarize"`
	Instruction RoleConfig `yaml:"instruction"`
}

// StoreConfig selects the revision storage backend and embedder.
type StoreConfig struct {
	Backend        string `yaml:"backend"` // badger or milvus
	Path           string `yaml:"path"`
	MilvusAddress  string `yaml:"milvus_address"`
	Collection     string `yaml:"collection"`
	Embedder       string `yaml:"embedder"` // hash, openai or gemini
	EmbeddingModel string `yaml:"embedding_model"`
	Dimension      int    `yaml:"dimension"`
}

// ScrapeConfig controls the browser scraper.
type ScrapeConfig struct {
	Headless   bool          `yaml:"headless"`
	Timeout    time.Duration `yaml:"timeout"`
	OutputDir  string        `yaml:"output_dir"`
	BrowserBin string        `yaml:"browser_bin"`
}

// SpeechConfig controls text-to-speech playback.
type SpeechConfig struct {
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`
	Player string `yaml:"player"`
	Dir    string `yaml:"dir"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the complete runtime configuration.
type Config struct {
	Book    BookConfig    `yaml:"book"`
	Prompts PromptsConfig `yaml:"prompts"`
	Models  ModelsConfig  `yaml:"models"`
	Store   StoreConfig   `yaml:"store"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Speech  SpeechConfig  `yaml:"speech"`
	Log     LogConfig     `yaml:"log"`
	Editor  string        `yaml:"editor"`

	MetricsAddr string `yaml:"metrics_addr"`

	// API keys only come from the environment.
	OpenAIAPIKey string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

// DefaultModels returns the role models for a provider.
func DefaultModels(provider string) ModelsConfig {
	if provider == "gemini" {
		return ModelsConfig{
			Rewrite:     RoleConfig{Provider: provider, Model: "gemini-1.5-flash"},
			Review:      RoleConfig{Provider: provider, Model: "gemini-1.5-pro"},
			Summarize:   RoleConfig{Provider: provider, Model: "gemini-2.5-flash"},
			Instruction: RoleConfig{Provider: provider, Model: "gemini-1.5-pro-latest"},
		}
	}
	return ModelsConfig{
		Rewrite:     RoleConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Review:      RoleConfig{Provider: "openai", Model: "gpt-4o"},
		Summarize:   RoleConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Instruction: RoleConfig{Provider: "openai", Model: "gpt-4o"},
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Book: BookConfig{
			BaseURL:    "https://en.wikisource.org/wiki/",
			Slug:       "The_Gates_of_Morning",
			BookNum:    1,
			ChapterNum: 1,
		},
		Prompts: PromptsConfig{
			File:             "prompt_scores.json",
			ExplorationRate:  0.35,
			LearningRate:     0.1,
			MinScore:         -10.0,
			MaxScore:         10.0,
			ExcludeThreshold: -5.0,
		},
		Models: DefaultModels("openai"),
		Store: StoreConfig{
			Backend:        "badger",
			Path:           "./ledger_data",
			MilvusAddress:  "localhost:19530",
			Collection:     "book_chapter_versions",
			Embedder:       "hash",
			EmbeddingModel: "text-embedding-3-small",
			Dimension:      256,
		},
		Scrape: ScrapeConfig{
			Headless:  true,
			Timeout:   30 * time.Second,
			OutputDir: ".",
		},
		Speech: SpeechConfig{
			Model:  "tts-1",
			Voice:  "alloy",
			Player: "cvlc --play-and-exit",
		},
		Log: LogConfig{
			Level: "info",
			File:  "application.log",
		},
		Editor: "vim",
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty or missing) and the environment, then validates it.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		if err := loadFile(path, &config); err != nil {
			return config, err
		}
	}

	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(config *Config) {
	config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if v := os.Getenv("RESPIN_LLM_PROVIDER"); v != "" {
		config.Models = DefaultModels(strings.ToLower(v))
	}
	if v := os.Getenv("MILVUS_ADDRESS"); v != "" {
		config.Store.MilvusAddress = v
	}
	if v := os.Getenv("RESPIN_STORE_BACKEND"); v != "" {
		config.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("RESPIN_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("RESPIN_EMBEDDER"); v != "" {
		config.Store.Embedder = strings.ToLower(v)
	}
	if v := os.Getenv("RESPIN_PROMPTS_FILE"); v != "" {
		config.Prompts.File = v
	}
	if v := os.Getenv("RESPIN_EXPLORATION_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Prompts.ExplorationRate = f
		}
	}
	if v := os.Getenv("RESPIN_LEARNING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Prompts.LearningRate = f
		}
	}
	if v := os.Getenv("RESPIN_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Prompts.Seed = n
		}
	}
	if v := os.Getenv("RESPIN_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Scrape.Headless = b
		}
	}
	if v := os.Getenv("RESPIN_PLAYER"); v != "" {
		config.Speech.Player = v
	}
	if v := os.Getenv("RESPIN_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv("RESPIN_EDITOR"); v != "" {
		config.Editor = v
	} else if v := os.Getenv("EDITOR"); v != "" {
		config.Editor = v
	}
}

// Validate checks every setting that would otherwise fail later.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Book.Slug == "" {
		add("book slug is required")
	}
	if c.Book.BookNum <= 0 || c.Book.ChapterNum <= 0 {
		add("book and chapter numbers must be positive")
	}

	p := c.Prompts
	if p.File == "" {
		add("prompts file is required")
	}
	if p.ExplorationRate < 0 || p.ExplorationRate > 1 {
		add("exploration rate %v outside [0, 1]", p.ExplorationRate)
	}
	if p.LearningRate <= 0 {
		add("learning rate must be positive")
	}
	if p.MinScore >= p.MaxScore {
		add("min score %v must be below max score %v", p.MinScore, p.MaxScore)
	}
	if p.ExcludeThreshold < p.MinScore || p.ExcludeThreshold > p.MaxScore {
		add("exclude threshold %v outside score bounds", p.ExcludeThreshold)
	}

	for role, rc := range map[string]RoleConfig{
		"rewrite":     c.Models.Rewrite,
		"review":      c.Models.Review,
		"summarize":   c.Models.Summarize,
		"instruction": c.Models.Instruction,
	} {
		switch rc.Provider {
		case "openai", "gemini", "mock":
		default:
			add("%s provider %q is not one of openai, gemini, mock", role, rc.Provider)
		}
		if rc.Model == "" {
			add("%s model is required", role)
		}
	}

	switch c.Store.Backend {
	case "badger":
		if c.Store.Path == "" {
			add("store path is required for badger")
		}
	case "milvus":
		if c.Store.MilvusAddress == "" {
			add("milvus address is required")
		}
	default:
		add("store backend %q is not one of badger, milvus", c.Store.Backend)
	}
	switch c.Store.Embedder {
	case "hash", "openai", "gemini":
	default:
		add("embedder %q is not one of hash, openai, gemini", c.Store.Embedder)
	}
	if c.Store.Dimension <= 0 {
		add("embedding dimension must be positive")
	}

	if c.Scrape.Timeout <= 0 {
		add("scrape timeout must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log level %q: %v", c.Log.Level, err)
	}

	return errors.Join(errs...)
}
