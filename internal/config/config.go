package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// HTTP Server
	Port        string `envconfig:"PORT" default:"8081"`
	RoutePrefix string `envconfig:"ROUTE_PREFIX" default:"/dashboard" validate:"startswith=/"`

	// Backend selection
	DataBackend string `envconfig:"DATA_BACKEND" default:"memory" validate:"oneof=memory sheets sqlite"`
	SeedFile    string `envconfig:"SEED_FILE" default:"./data/financial_data.csv"`

	// Archive
	SQLiteDBPath   string `envconfig:"SQLITE_DB_PATH" default:"./data/insight.db" validate:"required_if=DataBackend sqlite"`
	ArchiveEnabled bool   `envconfig:"ARCHIVE_ENABLED" default:"false"`

	// Google Sheets
	GoogleSpreadsheetID       string `envconfig:"GOOGLE_SPREADSHEET_ID" validate:"required_if=DataBackend sheets"`
	GoogleSpreadsheetRange    string `envconfig:"GOOGLE_SPREADSHEET_RANGE" default:"Financial Data" validate:"required"`
	GoogleServiceAccountJSON  string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile  string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleApplicationCredFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`

	// AMQP (optional for the server, required for the worker)
	AMQPURL          string `envconfig:"AMQP_URL"`
	AMQPExchange     string `envconfig:"AMQP_EXCHANGE" default:"insight"`
	AMQPRefreshQueue string `envconfig:"AMQP_REFRESH_QUEUE" default:"insight.refresh"`
	AMQPEventsQueue  string `envconfig:"AMQP_EVENTS_QUEUE" default:"insight.archived"`

	// Dataset refresh
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`

	// Rate limiting
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"10" validate:"gte=0"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20" validate:"min=1"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// Load reads .env when present, then the environment. Unset keys take the
// defaults in the struct tags.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	return &cfg, nil
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	errs := c.problems()
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateWorker applies Validate plus what the refresh worker needs: a
// broker, an archive and a fetchable source.
func (c *Config) ValidateWorker() error {
	errs := c.problems()
	if !c.AMQPEnabled() {
		errs = append(errs, "AMQP_URL is required for the worker")
	}
	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLITE_DB_PATH is required for the worker")
	}
	if c.DataBackend == "sqlite" {
		errs = append(errs, "the worker fetches from memory or sheets, not from its own archive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func (c *Config) problems() []string {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errs = append(errs, structProblems(c)...)

	if c.FetchTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid fetch timeout %v: must be at least 1 second", c.FetchTimeout))
	} else if c.FetchTimeout > 10*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid fetch timeout %v: must be at most 10 minutes", c.FetchTimeout))
	}

	if c.AMQPEnabled() {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRefreshQueue == "" || c.AMQPEventsQueue == "" {
			errs = append(errs, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.DataBackend == "sheets" {
		file := c.GoogleServiceAccountFile
		if file == "" {
			file = c.GoogleApplicationCredFile
		}
		if c.GoogleServiceAccountJSON == "" && file == "" {
			errs = append(errs, "one of GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && file != "" {
			if _, err := os.Stat(file); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", file))
			}
		}
	}

	return errs
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their environment variable name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

func structProblems(c *Config) []string {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			out = append(out, fmt.Sprintf("invalid %s '%v': must be one of [%s]", fe.Field(), fe.Value(), fe.Param()))
		case "required", "required_if":
			out = append(out, fmt.Sprintf("%s is required", fe.Field()))
		case "startswith":
			out = append(out, fmt.Sprintf("invalid %s '%v': must start with %q", fe.Field(), fe.Value(), fe.Param()))
		default:
			out = append(out, fmt.Sprintf("invalid %s '%v': failed %s=%s", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
		}
	}
	return out
}
