package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/tensrai/dashboard-api/config"
)

var logLevel = new(slog.LevelVar)

// redactedKeys are attribute keys whose values never reach the log output.
var redactedKeys = map[string]struct{}{
	"password":      {},
	"temp_password": {},
	"token":         {},
	"secret":        {},
	"cookie":        {},
	"authorization": {},
}

// InitLogger installs a JSON logger on stdout as the default and returns it.
// SetLogLevel adjusts it once the configuration is known.
func InitLogger(level slog.Level) *slog.Logger {
	logLevel.Set(level)
	logger := NewLogger(os.Stdout, logLevel)
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel changes the level of loggers created by InitLogger.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// NewLogger returns a JSON logger writing to w that redacts credential attributes.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
				return slog.String(a.Key, "[REDACTED]")
			}
			return a
		},
	}))
}

// LoadConfig loads configuration from the environment. Dotenv files named in ENV_FILE
// (comma separated, default ".env") are applied first when present; real environment
// variables win over file values.
func LoadConfig() (config.AppConfig, error) {
	if err := loadEnvFiles(os.Getenv("ENV_FILE")); err != nil {
		return config.AppConfig{}, err
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", describeEnvError(err))
	}

	cfg.Sanitize()
	return cfg, nil
}

func loadEnvFiles(list string) error {
	files := make([]string, 0, 2)
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// describeEnvError names every missing required variable in one message.
func describeEnvError(err error) error {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return err
	}
	var missing []string
	for _, e := range agg.Errors {
		var notSet env.EnvVarIsNotSetError
		var empty env.EmptyEnvVarError
		switch {
		case errors.As(e, &notSet):
			missing = append(missing, notSet.Key)
		case errors.As(e, &empty):
			missing = append(missing, empty.Key)
		}
	}
	if len(missing) == 0 {
		return err
	}
	return fmt.Errorf("missing required environment variables %s: %w", strings.Join(missing, ", "), err)
}
