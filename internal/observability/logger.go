package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/domain"
)

// LoggingConfig mirrors config.LoggingConfig so this package stays free of
// the configuration layer.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is json, or console/pretty for human-readable output.
	Format string
	// Output is stdout or stderr. Ignored when Writer is set.
	Output string
	// Writer overrides Output, e.g. a buffer in tests.
	Writer io.Writer
	// AddSource adds the caller's file and line.
	AddSource bool
	// TimeFormat defaults to RFC 3339.
	TimeFormat string
	// Service, when set, is attached to every entry.
	Service string
}

// NewLogger builds the root logger. It also sets zerolog's global level and
// time format, so call it once per process.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	out := cfg.Writer
	if out == nil {
		out = os.Stdout
		if strings.EqualFold(cfg.Output, "stderr") {
			out = os.Stderr
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	lc := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		lc = lc.Str("service", cfg.Service)
	}
	if cfg.AddSource {
		lc = lc.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return lc.Logger().Level(level)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithPaper adds the paper's id and, when known, its DOI.
func WithPaper(logger zerolog.Logger, p *domain.Paper) zerolog.Logger {
	if p == nil {
		return logger
	}
	lc := logger.With().Str("paper_id", p.ID.String())
	if doi := p.DOI(); doi != "" {
		lc = lc.Str("doi", doi)
	}
	return lc.Logger()
}

// WithSource adds the external source a log line is about.
func WithSource(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().Str("source", source).Logger()
}
