// Package config loads the dojo configuration file.
//
// Configuration is YAML decoded strictly (unknown keys are errors) on top of
// Default, then checked with struct validation tags. Durations are written
// as Go duration strings ("5s", "250ms").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Version is the only configuration format version understood.
const Version = "1"

// Config is the top-level dojo configuration.
type Config struct {
	Version string `yaml:"version" json:"version" validate:"required,eq=1"`

	// Fields lists the mathematical fields the pattern store accepts.
	Fields []string `yaml:"fields" json:"fields" validate:"required,min=1,unique,dive,fieldname"`

	// Validators is an optional path to a CUE file with per-field payload
	// constraints. Relative paths resolve against the config file.
	Validators string `yaml:"validators,omitempty" json:"validators,omitempty"`

	Arena   ArenaConfig   `yaml:"arena" json:"arena"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Notify  NotifyConfig  `yaml:"notify" json:"notify"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ArenaConfig tunes the training arena.
type ArenaConfig struct {
	QueueBound          int      `yaml:"queue_bound" json:"queue_bound" validate:"gte=1"`
	Workers             int      `yaml:"workers" json:"workers" validate:"gte=1,lte=256"`
	LockWait            Duration `yaml:"lock_wait" json:"lock_wait" validate:"gt=0"`
	PollInterval        Duration `yaml:"poll_interval" json:"poll_interval" validate:"gt=0"`
	MinCompressionRatio float64  `yaml:"min_compression_ratio" json:"min_compression_ratio" validate:"gt=0"`
	BaselineSize        int64    `yaml:"baseline_size" json:"baseline_size" validate:"gt=0"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	// Path is the database file. ":memory:" keeps everything in process.
	Path string `yaml:"path" json:"path" validate:"required"`
}

// NotifyConfig enables Redis lifecycle events. Empty RedisAddr disables them.
type NotifyConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty" validate:"omitempty,hostname_port"`
	Instance  string `yaml:"instance,omitempty" json:"instance,omitempty" validate:"required_with=RedisAddr"`
}

// MetricsConfig enables the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Version: Version,
		Fields: []string{
			"arithmetic",
			"algebra",
			"geometry",
			"calculus",
			"discrete",
			"statistics",
			"information-theory",
			"dynamics",
		},
		Arena: ArenaConfig{
			QueueBound:          1024,
			Workers:             4,
			LockWait:            Duration(5 * time.Second),
			PollInterval:        Duration(2 * time.Second),
			MinCompressionRatio: 10.0,
			BaselineSize:        1_000_000,
		},
		Store: StoreConfig{
			Path: "dojo.db",
		},
	}
}

// Load reads and validates the configuration at path. Keys absent from the
// file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if cfg.Validators != "" && !filepath.IsAbs(cfg.Validators) {
		cfg.Validators = filepath.Join(filepath.Dir(path), cfg.Validators)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the struct tags of c.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// describe renders one validation failure using the YAML key path.
func describe(fe validator.FieldError) string {
	// Namespace is "Config.arena.workers"; drop the root type.
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", path, toSnake(fe.Param()))
	case "eq":
		return fmt.Sprintf("%s must be %s", path, fe.Param())
	case "gt", "gte", "lte", "min":
		return fmt.Sprintf("%s must be %s %s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", path)
	case "fieldname":
		return fmt.Sprintf("%s: %q must be lowercase letters, digits and dashes", path, fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s: %q is not a host:port address", path, fe.Value())
	}
	return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
}

// Shared validator instance, with YAML key names and the fieldname rule.
var validate *validator.Validate

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("fieldname", func(fl validator.FieldLevel) bool {
		return fieldNamePattern.MatchString(fl.Field().String())
	})
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
