package app

import (
	"errors"
	"fmt"
	"polwatch-backend/internal/apis/twitter"
	"polwatch-backend/internal/components/cache"
	"polwatch-backend/internal/components/chrono"
	"polwatch-backend/internal/components/configutil"
	"polwatch-backend/internal/components/sqliteutil"
	"polwatch-backend/internal/components/telemetry"
	"polwatch-backend/internal/ingest"
	"polwatch-backend/internal/scrapers/parliament"
	"time"
)

// ENV_PREFIX is prepended to the env tag of every config field.
const ENV_PREFIX = "POLWATCH_"

type TwitterConfig struct {
	BearerToken       string  `json:"bearer_token" env:"BEARER_TOKEN"`
	BaseUrl           string  `json:"base_url" env:"BASE_URL"`
	RequestsPerSecond float64 `json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	MaxRetries        int     `json:"max_retries" env:"MAX_RETRIES"`
}

type CacheConfig struct {
	MaxEntries int `json:"max_entries" env:"MAX_ENTRIES"`
	TTLSeconds int `json:"ttl_seconds" env:"TTL_SECONDS"`
}

type ScheduleConfig struct {
	// Votes and Posts are cron specs, an empty spec disables the job.
	Votes string `json:"votes" env:"VOTES"`
	Posts string `json:"posts" env:"POSTS"`
	// VotesRange is the range of sessions the scheduled votes job ingests.
	VotesRange ingest.SessionRange `json:"votes_range"`
}

type Config struct {
	Listen     string               `json:"listen" env:"LISTEN"`
	Timezone   string               `json:"timezone" env:"TIMEZONE"`
	Database   sqliteutil.Config    `json:"database" envPrefix:"DATABASE_"`
	Twitter    TwitterConfig        `json:"twitter" envPrefix:"TWITTER_"`
	Parliament parliament.Options   `json:"parliament" envPrefix:"PARLIAMENT_"`
	Ingest     ingest.Options       `json:"ingest" envPrefix:"INGEST_"`
	Cache      CacheConfig          `json:"cache" envPrefix:"CACHE_"`
	Schedule   ScheduleConfig       `json:"schedule" envPrefix:"SCHEDULE_"`
	Otlp       telemetry.OtlpConfig `json:"otlp"`
}

// LoadConfig reads the config file at path (and its .local override), applies
// environment overrides, fills in defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg, err := configutil.Load[Config](path, ENV_PREFIX)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.applyDefaults()
	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "0.0.0.0:8000"
	}

	twitterDefaults := twitter.DefaultOptions()
	if c.Twitter.BaseUrl == "" {
		c.Twitter.BaseUrl = twitterDefaults.BaseUrl
	}
	if c.Twitter.MaxRetries <= 0 {
		c.Twitter.MaxRetries = twitterDefaults.MaxRetries
	}

	parliamentDefaults := parliament.DefaultOptions()
	if c.Parliament.RequestsPerSecond <= 0 {
		c.Parliament.RequestsPerSecond = parliamentDefaults.RequestsPerSecond
	}
	if c.Parliament.Timeout <= 0 {
		c.Parliament.Timeout = parliamentDefaults.Timeout
	}

	ingestDefaults := ingest.DefaultOptions()
	if c.Ingest.MaxParallelism <= 0 {
		c.Ingest.MaxParallelism = ingestDefaults.MaxParallelism
	}
	if c.Ingest.MaxSessionRange <= 0 {
		c.Ingest.MaxSessionRange = ingestDefaults.MaxSessionRange
	}
	if c.Ingest.PostsPerPolitician <= 0 {
		c.Ingest.PostsPerPolitician = ingestDefaults.PostsPerPolitician
	}

	cacheDefaults := cache.DefaultOptions()
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = cacheDefaults.MaxEntries
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = int(cacheDefaults.TTL / time.Second)
	}
}

// Validate fails on anything that must be present before ingestion can start.
func (c Config) Validate() error {
	var errs []error
	err := c.Database.Validate()
	if err != nil {
		errs = append(errs, err)
	}
	if c.Twitter.BearerToken == "" {
		errs = append(errs, fmt.Errorf("twitter: bearer_token must be specified (or %sTWITTER_BEARER_TOKEN)", ENV_PREFIX))
	}
	if c.Parliament.BaseUrl == "" {
		errs = append(errs, fmt.Errorf("parliament: base_url must be specified"))
	}
	for _, spec := range []string{c.Schedule.Votes, c.Schedule.Posts} {
		if spec == "" {
			continue
		}
		err = chrono.ValidateSpec(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	}
	if c.Schedule.Votes != "" {
		err = c.Schedule.VotesRange.Validate(c.Ingest.MaxSessionRange)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) CacheOptions() cache.Options {
	return cache.Options{
		MaxEntries: c.Cache.MaxEntries,
		TTL:        time.Duration(c.Cache.TTLSeconds) * time.Second,
	}
}

func (c Config) TwitterOptions() twitter.Options {
	opts := twitter.DefaultOptions()
	opts.BaseUrl = c.Twitter.BaseUrl
	opts.BearerToken = c.Twitter.BearerToken
	opts.RequestsPerSecond = c.Twitter.RequestsPerSecond
	opts.MaxRetries = c.Twitter.MaxRetries
	return opts
}
