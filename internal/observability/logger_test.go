package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/domain"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestNewLogger_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "debug", Format: "json", Writer: &buf, Service: "reference-service"})

	logger.Debug().Str("k", "v").Msg("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "reference-service", entry["service"])
	assert.Equal(t, "v", entry["k"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_LevelFilters(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "warn", Writer: &buf})

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Equal(t, "kept", decodeLine(t, &buf)["message"])
	assert.NotContains(t, decodeLine(t, &buf), "service")
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "info", Format: "console", Writer: &buf})

	logger.Info().Msg("readable")

	assert.Contains(t, buf.String(), "readable")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNewLogger_AddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Writer: &buf, AddSource: true})

	logger.Info().Msg("x")

	assert.Contains(t, decodeLine(t, &buf)["caller"], "logger_test.go")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"loud":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestWithPaper(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	paper := &domain.Paper{ID: uuid.New(), Identifiers: domain.Identifiers{domain.IdentifierTypeDOI: "10.1000/xyz"}}
	logger := WithPaper(base, paper)
	logger.Info().Msg("acquired")

	entry := decodeLine(t, &buf)
	assert.Equal(t, paper.ID.String(), entry["paper_id"])
	assert.Equal(t, "10.1000/xyz", entry["doi"])

	buf.Reset()
	logger = WithPaper(base, &domain.Paper{ID: paper.ID})
	logger.Info().Msg("no doi")
	assert.NotContains(t, decodeLine(t, &buf), "doi")

	buf.Reset()
	logger = WithPaper(base, nil)
	logger.Info().Msg("nil")
	assert.NotContains(t, decodeLine(t, &buf), "paper_id")
}

func TestWithSource(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSource(zerolog.New(&buf), "crossref")
	logger.Warn().Msg("slow")

	assert.Equal(t, "crossref", decodeLine(t, &buf)["source"])
}
