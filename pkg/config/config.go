// Package config loads the single glyphos configuration file. A loaded Config
// is treated as immutable: it is built once at startup and threaded through
// constructors, never stored in package state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"glyphos/pkg/textnorm"
)

// Config is the root configuration document.
type Config struct {
	Store       StoreConfig       `yaml:"store" toml:"store"`
	Lexicon     LexiconConfig     `yaml:"lexicon" toml:"lexicon"`
	Affect      AffectConfig      `yaml:"affect" toml:"affect"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Prune       PruneConfig       `yaml:"prune" toml:"prune"`
	Composer    ComposerConfig    `yaml:"composer" toml:"composer"`
	Backup      BackupConfig      `yaml:"backup" toml:"backup"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance" toml:"maintenance"`
}

// StoreConfig locates the lexicon database and report output.
type StoreConfig struct {
	Path      string `yaml:"path" toml:"path"`
	ReportDir string `yaml:"report_dir" toml:"report_dir"`
}

// LexiconConfig holds the vocabularies used by normalization. The gate set is
// closed: ingestion rejects any gate not listed here.
type LexiconConfig struct {
	Gates       []string          `yaml:"gates" toml:"gates"`
	Stopwords   []string          `yaml:"stopwords" toml:"stopwords"`
	Dictionary  []string          `yaml:"dictionary" toml:"dictionary"`
	Lemmas      map[string]string `yaml:"lemmas" toml:"lemmas"`
	Adjectives  []string          `yaml:"adjectives" toml:"adjectives"`
	Verbs       []string          `yaml:"verbs" toml:"verbs"`
	Boilerplate []string          `yaml:"boilerplate" toml:"boilerplate"`
}

// AffectConfig holds the emotional vocabularies shared by retrieval,
// consolidation and the composer.
type AffectConfig struct {
	Vocabulary   []string           `yaml:"vocabulary" toml:"vocabulary"`
	EmotionCores []string           `yaml:"emotion_cores" toml:"emotion_cores"`
	CoreWeights  map[string]float64 `yaml:"core_weights" toml:"core_weights"`
	Metaphors    []string           `yaml:"metaphors" toml:"metaphors"`
}

// IngestConfig tunes candidate scoring and promotion.
type IngestConfig struct {
	Seeds            []string `yaml:"seeds" toml:"seeds"`
	ScoreFloor       float64  `yaml:"score_floor" toml:"score_floor"`
	MaxPhraseTokens  int      `yaml:"max_phrase_tokens" toml:"max_phrase_tokens"`
	Workers          int      `yaml:"workers" toml:"workers"`
	PromoteRatingMin int      `yaml:"promote_rating_min" toml:"promote_rating_min"`
}

// RetrievalConfig holds hit weights and ranking limits.
type RetrievalConfig struct {
	NameWeight    int    `yaml:"name_weight" toml:"name_weight"`
	KeywordWeight int    `yaml:"keyword_weight" toml:"keyword_weight"`
	CoreWeight    int    `yaml:"core_weight" toml:"core_weight"`
	ContextWeight int    `yaml:"context_weight" toml:"context_weight"`
	Floor         int    `yaml:"floor" toml:"floor"`
	TopK          int    `yaml:"top_k" toml:"top_k"`
	Timeout       string `yaml:"timeout" toml:"timeout"`
}

// PruneConfig controls strict pruning and advisory gate caps.
type PruneConfig struct {
	StrictGroupMin int            `yaml:"strict_group_min" toml:"strict_group_min"`
	GateCaps       map[string]int `yaml:"gate_caps" toml:"gate_caps"`
}

// ComposerConfig controls reply construction.
type ComposerConfig struct {
	MaxLength  int      `yaml:"max_length" toml:"max_length"`
	EchoLength int      `yaml:"echo_length" toml:"echo_length"`
	Cadence    []string `yaml:"cadence" toml:"cadence"`
}

// BackupConfig locates local backups and the optional object-storage mirror.
type BackupConfig struct {
	Dir    string       `yaml:"dir" toml:"dir"`
	Mirror MirrorConfig `yaml:"mirror" toml:"mirror"`
}

// MirrorConfig configures S3-compatible backup mirroring. Empty Endpoint
// disables mirroring.
type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, console, auto
}

// MaintenanceConfig schedules the offline backup + prune dry-run job.
type MaintenanceConfig struct {
	Schedule string `yaml:"schedule" toml:"schedule"` // 5-field cron expression
}

// Reply endings used by the composer cadence.
const (
	EndQuestion    = "question"
	EndReflection  = "reflection"
	EndAffirmation = "affirmation"
)

// DefaultConfig returns the default configuration. Vocabulary slices are
// copies, so callers may not alias the textnorm defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{},
		Lexicon: LexiconConfig{
			Gates:       []string{"longing", "grief", "joy", "stillness", "recognition", "devotion", "boundary"},
			Stopwords:   slices.Clone(textnorm.DefaultStopwords),
			Dictionary:  slices.Clone(textnorm.DefaultDictionary),
			Lemmas:      map[string]string{},
			Adjectives:  slices.Clone(textnorm.DefaultAdjectives),
			Verbs:       slices.Clone(textnorm.DefaultVerbs),
			Boilerplate: slices.Clone(textnorm.DefaultBoilerplatePatterns),
		},
		Affect: AffectConfig{
			Vocabulary: []string{
				"stressed", "anxious", "sad", "angry", "lonely", "overwhelmed", "tired", "exhausted",
				"scared", "afraid", "hurt", "lost", "numb", "empty", "grief", "grieving", "ache",
				"happy", "joyful", "calm", "grateful", "hopeful", "ashamed", "guilty", "frustrated",
				"worried", "unseen", "heavy", "depleted", "restless",
			},
			EmotionCores: []string{
				"ache", "grief", "joy", "stillness", "recognition", "boundary", "longing", "devotion",
				"sorrow", "peace", "fear", "love",
			},
			CoreWeights: map[string]float64{
				"ache": 1.0, "grief": 1.0, "joy": 1.0, "stillness": 1.0, "recognition": 1.0,
				"boundary": 1.0, "longing": 0.8, "devotion": 0.8, "sorrow": 0.6, "peace": 0.6,
				"fear": 0.5, "love": 0.5,
			},
			Metaphors: []string{
				"storm", "ocean", "wave", "tide", "river", "fire", "flame", "mountain", "garden",
				"seed", "bloom", "bridge", "shadow", "light", "darkness", "well", "anchor",
			},
		},
		Ingest: IngestConfig{
			Seeds: []string{
				"ache", "grief", "joy", "stillness", "recognition", "boundary", "longing", "devotion",
				"sorrow", "tender", "quiet", "sacred",
			},
			ScoreFloor:       1.0,
			MaxPhraseTokens:  4,
			Workers:          4,
			PromoteRatingMin: 4,
		},
		Retrieval: RetrievalConfig{
			NameWeight:    3,
			KeywordWeight: 2,
			CoreWeight:    1,
			ContextWeight: 1,
			Floor:         1,
			TopK:          5,
			Timeout:       "2s",
		},
		Prune: PruneConfig{
			StrictGroupMin: 10,
			GateCaps:       map[string]int{},
		},
		Composer: ComposerConfig{
			MaxLength:  400,
			EchoLength: 80,
			Cadence:    []string{EndQuestion, EndReflection, EndQuestion, EndAffirmation},
		},
		Backup: BackupConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Maintenance: MaintenanceConfig{
			Schedule: "0 3 * * *",
		},
	}
}

// Load reads the configuration file at path over the defaults. Files ending
// in .toml are decoded as TOML; anything else as YAML. A missing file yields
// the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse toml config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml config %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to path, choosing the encoding by extension.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies GLYPHOS_* environment overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GLYPHOS_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("GLYPHOS_BACKUP_DIR"); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv("GLYPHOS_REPORT_DIR"); v != "" {
		c.Store.ReportDir = v
	}
	if v := os.Getenv("GLYPHOS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GLYPHOS_MIRROR_ACCESS_KEY"); v != "" {
		c.Backup.Mirror.AccessKey = v
	}
	if v := os.Getenv("GLYPHOS_MIRROR_SECRET_KEY"); v != "" {
		c.Backup.Mirror.SecretKey = v
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Lexicon.Gates) == 0 {
		return fmt.Errorf("config: lexicon.gates must enumerate at least one gate")
	}
	seen := make(map[string]struct{}, len(c.Lexicon.Gates))
	for _, g := range c.Lexicon.Gates {
		if strings.TrimSpace(g) == "" {
			return fmt.Errorf("config: empty gate name")
		}
		if _, dup := seen[g]; dup {
			return fmt.Errorf("config: duplicate gate %q", g)
		}
		seen[g] = struct{}{}
	}
	for gate, limit := range c.Prune.GateCaps {
		if _, ok := seen[gate]; !ok {
			return fmt.Errorf("config: gate cap for unknown gate %q", gate)
		}
		if limit < 0 {
			return fmt.Errorf("config: gate cap for %q is negative", gate)
		}
	}
	if len(c.Affect.Vocabulary) == 0 {
		return fmt.Errorf("config: affect.vocabulary must not be empty")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("config: retrieval.top_k must be positive")
	}
	if c.Prune.StrictGroupMin < 2 {
		return fmt.Errorf("config: prune.strict_group_min must be at least 2")
	}
	if c.Composer.MaxLength < 80 {
		return fmt.Errorf("config: composer.max_length must be at least 80")
	}
	if len(c.Composer.Cadence) == 0 {
		return fmt.Errorf("config: composer.cadence must not be empty")
	}
	for _, end := range c.Composer.Cadence {
		switch end {
		case EndQuestion, EndReflection, EndAffirmation:
		default:
			return fmt.Errorf("config: unknown cadence ending %q", end)
		}
	}
	if _, err := time.ParseDuration(c.Retrieval.Timeout); c.Retrieval.Timeout != "" && err != nil {
		return fmt.Errorf("config: retrieval.timeout: %w", err)
	}
	switch c.Logging.Format {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("config: unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// HasGate reports whether gate is in the configured gate set.
func (c *Config) HasGate(gate string) bool {
	return slices.Contains(c.Lexicon.Gates, gate)
}

// RetrievalTimeout returns the per-request retrieval deadline, 0 for none.
func (c *Config) RetrievalTimeout() time.Duration {
	d, err := time.ParseDuration(c.Retrieval.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Analyzer builds the normalization analyzer described by the config.
func (c *Config) Analyzer() *textnorm.Analyzer {
	return textnorm.NewAnalyzer(textnorm.Options{
		Stopwords:  c.Lexicon.Stopwords,
		Lemmas:     c.Lexicon.Lemmas,
		Dictionary: c.Lexicon.Dictionary,
	})
}

// Tagger builds the POS tagger over a.
func (c *Config) Tagger(a *textnorm.Analyzer) *textnorm.Tagger {
	return textnorm.NewTagger(a, c.Lexicon.Adjectives, c.Lexicon.Verbs)
}
