// Package config loads runtime settings from defaults, .env files and
// GLITCHBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/chelinho139/glitchbot/internal/dedup"
	"github.com/chelinho139/glitchbot/internal/engine"
	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/governor"
	"github.com/chelinho139/glitchbot/internal/quality"
	"github.com/chelinho139/glitchbot/internal/scheduler"
)

// Environment variable names.
const (
	EnvDB                   = "GLITCHBOT_DB"
	EnvHandle               = "GLITCHBOT_HANDLE"
	EnvTopic                = "GLITCHBOT_TOPIC"
	EnvSeedTopics           = "GLITCHBOT_SEED_TOPICS"
	EnvStepDelay            = "GLITCHBOT_STEP_DELAY"
	EnvMaxBackoff           = "GLITCHBOT_MAX_BACKOFF"
	EnvMaxPostsPerHour      = "GLITCHBOT_MAX_POSTS_PER_HOUR"
	EnvMinMinutesBetween    = "GLITCHBOT_MIN_MINUTES_BETWEEN_POSTS"
	EnvLLMCallsPerHour      = "GLITCHBOT_LLM_CALLS_PER_HOUR"
	EnvSimilarityThreshold  = "GLITCHBOT_SIMILARITY_THRESHOLD"
	EnvSimilarityWindowDays = "GLITCHBOT_SIMILARITY_WINDOW_DAYS"
	EnvPostScoreThreshold   = "GLITCHBOT_POST_SCORE_THRESHOLD"
	EnvMinFollowers         = "GLITCHBOT_MIN_FOLLOWERS"
	EnvCleanupDays          = "GLITCHBOT_CLEANUP_DAYS"
)

// Defaults not owned by another package.
const (
	DefaultDBPath      = "glitchbot.db"
	DefaultCleanupDays = 30
)

// DefaultEnvFiles are read by Load when present. Later files win.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config holds every runtime setting.
type Config struct {
	DBPath      string
	OwnerHandle string
	Topic       string
	SeedTopics  []string

	// StepDelay is the pause between scheduler steps and the first
	// backoff delay after a rate limit.
	StepDelay  time.Duration
	MaxBackoff time.Duration

	MaxPostsPerHour int
	MinBetweenPosts time.Duration
	LLMCallsPerHour int

	SimilarityThreshold  float64
	SimilarityWindowDays int
	PostScoreThreshold   int
	MinFollowers         int64

	CleanupDays int
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DBPath:               DefaultDBPath,
		OwnerHandle:          engine.DefaultOwnerHandle,
		Topic:                engine.DefaultTopic,
		SeedTopics:           append([]string(nil), engine.DefaultSeedTopics...),
		StepDelay:            scheduler.DefaultInterval,
		MaxBackoff:           scheduler.DefaultMaxBackoff,
		MaxPostsPerHour:      governor.DefaultMaxPostsPerHour,
		MinBetweenPosts:      governor.DefaultMinBetweenPosts,
		LLMCallsPerHour:      generate.DefaultCallsPerHour,
		SimilarityThreshold:  dedup.DefaultThreshold,
		SimilarityWindowDays: dedup.DefaultWindowDays,
		PostScoreThreshold:   quality.DefaultAcceptThreshold,
		MinFollowers:         quality.DefaultMinFollowers,
		CleanupDays:          DefaultCleanupDays,
	}
}

// LoadEnvFiles loads the given .env files into the process environment,
// overriding variables already set. Missing files are skipped.
// Returns the files that were loaded.
func LoadEnvFiles(files ...string) []string {
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			slog.Warn("failed to load env file", "file", file, "error", err)
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) == 0 {
		slog.Debug("no env files loaded; using process environment")
	} else {
		slog.Debug("loaded env files", "files", strings.Join(loaded, ", "))
	}
	return loaded
}

// Load reads DefaultEnvFiles and then the environment over Default().
func Load() (Config, error) {
	LoadEnvFiles(DefaultEnvFiles...)
	return FromEnv(os.LookupEnv)
}

// FromEnv applies GLITCHBOT_* variables from lookup over Default() and
// validates the result. Every malformed variable is reported.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := envParser{lookup: lookup}

	p.str(EnvDB, &cfg.DBPath)
	p.str(EnvHandle, &cfg.OwnerHandle)
	p.str(EnvTopic, &cfg.Topic)
	p.list(EnvSeedTopics, &cfg.SeedTopics)
	p.seconds(EnvStepDelay, &cfg.StepDelay)
	p.seconds(EnvMaxBackoff, &cfg.MaxBackoff)
	p.intVar(EnvMaxPostsPerHour, &cfg.MaxPostsPerHour)
	p.minutes(EnvMinMinutesBetween, &cfg.MinBetweenPosts)
	p.intVar(EnvLLMCallsPerHour, &cfg.LLMCallsPerHour)
	p.floatVar(EnvSimilarityThreshold, &cfg.SimilarityThreshold)
	p.intVar(EnvSimilarityWindowDays, &cfg.SimilarityWindowDays)
	p.intVar(EnvPostScoreThreshold, &cfg.PostScoreThreshold)
	p.int64Var(EnvMinFollowers, &cfg.MinFollowers)
	p.intVar(EnvCleanupDays, &cfg.CleanupDays)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if strings.TrimPrefix(c.OwnerHandle, "@") == "" {
		errs = append(errs, errors.New("owner handle is required"))
	}
	if c.StepDelay <= 0 {
		errs = append(errs, fmt.Errorf("step delay must be positive, got %s", c.StepDelay))
	}
	if c.MaxBackoff < c.StepDelay {
		errs = append(errs, fmt.Errorf("max backoff %s is below step delay %s", c.MaxBackoff, c.StepDelay))
	}
	if c.MaxPostsPerHour <= 0 {
		errs = append(errs, fmt.Errorf("max posts per hour must be positive, got %d", c.MaxPostsPerHour))
	}
	if c.MinBetweenPosts < 0 {
		errs = append(errs, fmt.Errorf("min time between posts must not be negative, got %s", c.MinBetweenPosts))
	}
	if c.LLMCallsPerHour <= 0 {
		errs = append(errs, fmt.Errorf("llm calls per hour must be positive, got %d", c.LLMCallsPerHour))
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity threshold must be in (0, 1], got %g", c.SimilarityThreshold))
	}
	if c.SimilarityWindowDays <= 0 {
		errs = append(errs, fmt.Errorf("similarity window must be positive, got %d days", c.SimilarityWindowDays))
	}
	if c.CleanupDays <= 0 {
		errs = append(errs, fmt.Errorf("cleanup retention must be positive, got %d days", c.CleanupDays))
	}
	return errors.Join(errs...)
}

// Engine maps the settings onto engine tunables.
func (c Config) Engine() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Topic = c.Topic
	cfg.OwnerHandle = c.OwnerHandle
	cfg.SeedTopics = append([]string(nil), c.SeedTopics...)
	cfg.Governor = governor.Config{
		MaxPostsPerHour: c.MaxPostsPerHour,
		MinBetweenPosts: c.MinBetweenPosts,
	}
	cfg.SimilarityThreshold = c.SimilarityThreshold
	cfg.SimilarityWindowDays = c.SimilarityWindowDays
	cfg.PostScoreThreshold = c.PostScoreThreshold
	cfg.MinFollowers = c.MinFollowers
	return cfg
}

// Scheduler maps the settings onto the scheduler cadence.
// Backoff starts at the step delay and doubles up to MaxBackoff.
func (c Config) Scheduler() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.Topic = c.Topic
	cfg.Interval = c.StepDelay
	cfg.BaseBackoff = c.StepDelay
	cfg.MaxBackoff = c.MaxBackoff
	return cfg
}

// CleanupRetention returns the cleanup age as a duration.
func (c Config) CleanupRetention() time.Duration {
	return time.Duration(c.CleanupDays) * 24 * time.Hour
}

// envParser reads typed variables and collects parse errors.
type envParser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *envParser) value(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.value(key); ok {
		*dst = v
	}
}

func (p *envParser) list(key string, dst *[]string) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (p *envParser) intVar(key string, dst *int) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (p *envParser) int64Var(key string, dst *int64) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (p *envParser) floatVar(key string, dst *float64) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

// seconds accepts a bare number of seconds or a Go duration ("15m").
func (p *envParser) seconds(key string, dst *time.Duration) {
	p.duration(key, time.Second, dst)
}

// minutes accepts a bare number of minutes or a Go duration ("90s").
func (p *envParser) minutes(key string, dst *time.Duration) {
	p.duration(key, time.Minute, dst)
}

func (p *envParser) duration(key string, unit time.Duration, dst *time.Duration) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(f * float64(unit))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
