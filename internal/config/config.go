// Package config loads settings from defaults, an optional YAML file, a .env file and LECTURE_ARCHIVER_* environment
// variables, in increasing order of precedence. Command line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	la "github.com/alanbriolat/lecture-archiver"
)

const EnvPrefix = "LECTURE_ARCHIVER_"

var ErrInvalidConfig = errors.New("invalid configuration")

type TranscriptsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	Model     string `yaml:"model"`
	Binary    string `yaml:"binary"`
	QueueSize int    `yaml:"queue_size"`
}

type Config struct {
	BaseURL           string            `yaml:"base_url"`
	Root              string            `yaml:"root"`
	CoursesFile       string            `yaml:"courses_file"`
	ValidationLog     string            `yaml:"validation_log"`
	RedisURL          string            `yaml:"redis_url"`
	RedisKey          string            `yaml:"redis_key"`
	StateDB           string            `yaml:"state_db"`
	HistoryDB         string            `yaml:"history_db"`
	Workers           int               `yaml:"workers"`
	CourseBudget      ByteSize          `yaml:"course_budget"`
	TotalBudget       ByteSize          `yaml:"total_budget"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Prober            string            `yaml:"prober"`
	LogDir            string            `yaml:"log_dir"`
	Transcripts       TranscriptsConfig `yaml:"transcripts"`
}

func Default() Config {
	return Config{
		BaseURL:       la.DefaultBaseURL,
		Root:          la.DefaultRoot,
		CoursesFile:   "DB/CoursesNames/course_acronyms.txt",
		ValidationLog: "DB/validation_test_pass.txt",
		RedisKey:      "lecture-archiver:validated",
		StateDB:       "DB/state.bolt",
		HistoryDB:     "DB/history.sqlite",
		Workers:       2,
		CourseBudget:  Bytes(15 << 30),
		TotalBudget:   Unlimited(),
		Prober:        "mp4",
		Transcripts: TranscriptsConfig{
			Enabled:   true,
			Dir:       "DB/Transcripciones",
			Model:     "tiny",
			Binary:    "whisper",
			QueueSize: 64,
		},
	}
}

// Load builds the configuration. A missing config file or .env file is not an error; an empty path skips it.
func Load(fs afero.Fs, path string, envFile string) (Config, error) {
	config := Default()
	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return config, fmt.Errorf("failed to read config file: %w", err)
		} else if err == nil {
			if err := yaml.UnmarshalStrict(data, &config); err != nil {
				return config, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	if envFile != "" {
		// Variables already in the environment win over the .env file
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	if err := config.applyEnv(os.LookupEnv); err != nil {
		return config, err
	}
	return config, nil
}

type envSetter func(c *Config, value string) error

func stringSetter(field func(c *Config) *string) envSetter {
	return func(c *Config, value string) error {
		*field(c) = value
		return nil
	}
}

var envSetters = map[string]envSetter{
	"BASE_URL":        stringSetter(func(c *Config) *string { return &c.BaseURL }),
	"ROOT":            stringSetter(func(c *Config) *string { return &c.Root }),
	"COURSES_FILE":    stringSetter(func(c *Config) *string { return &c.CoursesFile }),
	"VALIDATION_LOG":  stringSetter(func(c *Config) *string { return &c.ValidationLog }),
	"REDIS_URL":       stringSetter(func(c *Config) *string { return &c.RedisURL }),
	"REDIS_KEY":       stringSetter(func(c *Config) *string { return &c.RedisKey }),
	"STATE_DB":        stringSetter(func(c *Config) *string { return &c.StateDB }),
	"HISTORY_DB":      stringSetter(func(c *Config) *string { return &c.HistoryDB }),
	"PROBER":          stringSetter(func(c *Config) *string { return &c.Prober }),
	"LOG_DIR":         stringSetter(func(c *Config) *string { return &c.LogDir }),
	"TRANSCRIPTS_DIR": stringSetter(func(c *Config) *string { return &c.Transcripts.Dir }),
	"WHISPER_MODEL":   stringSetter(func(c *Config) *string { return &c.Transcripts.Model }),
	"WHISPER_BINARY":  stringSetter(func(c *Config) *string { return &c.Transcripts.Binary }),
	"WORKERS": func(c *Config, value string) (err error) {
		c.Workers, err = strconv.Atoi(value)
		return err
	},
	"REQUESTS_PER_SECOND": func(c *Config, value string) (err error) {
		c.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
		return err
	},
	"COURSE_BUDGET": func(c *Config, value string) error {
		return c.CourseBudget.Set(value)
	},
	"TOTAL_BUDGET": func(c *Config, value string) error {
		return c.TotalBudget.Set(value)
	},
	"TRANSCRIBE": func(c *Config, value string) (err error) {
		c.Transcripts.Enabled, err = strconv.ParseBool(value)
		return err
	},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, set := range envSetters {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(c, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, name, err)
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	case c.Root == "":
		return fmt.Errorf("%w: root must not be empty", ErrInvalidConfig)
	case !strings.Contains(c.BaseURL, "{nn}"):
		return fmt.Errorf("%w: base_url must contain the {nn} placeholder", ErrInvalidConfig)
	case c.ValidationLog == "" && c.RedisURL == "":
		return fmt.Errorf("%w: one of validation_log or redis_url is required", ErrInvalidConfig)
	case c.Prober != "mp4" && c.Prober != "ffprobe":
		return fmt.Errorf("%w: unknown prober %q", ErrInvalidConfig, c.Prober)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("%w: requests_per_second must not be negative", ErrInvalidConfig)
	case c.Transcripts.Enabled && c.Transcripts.Dir == "":
		return fmt.Errorf("%w: transcripts.dir must not be empty", ErrInvalidConfig)
	}
	return nil
}

func (c Config) Layout() la.Layout {
	return la.Layout{BaseURL: c.BaseURL, Root: c.Root}
}

func (c Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	return string(data), err
}
