// Package logging wraps go.uber.org/zap the way the teacher's
// core/backend/services/logging.go configures its production logger:
// structured JSON fields rather than interpolated strings, ISO8601
// timestamps, and a capital-letter level encoder. Every cube component logs
// through here with the fields spec.md §8 names: aggregation_id, chunk_id,
// revision.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the package-level structured logger. It defaults to a
// development config (human-readable console output) until Init is called
// with a production environment.
var Logger = mustDevelopment()

func mustDevelopment() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init rebuilds the package logger for the named environment ("production"
// or "development"), mirroring the teacher's own env-gated zap config
// choice (see config.go's analogous branch).
func Init(env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// WithAggregation returns a child logger scoped to one aggregation,
// matching the {Kind, AggregationID, ChunkID, Revision} fields
// pkg/cubeerr attaches to structured errors.
func WithAggregation(id string) *zap.Logger {
	return Logger.With(zap.String("aggregation_id", id))
}

// WithChunk returns a child logger scoped to one chunk within an
// aggregation.
func WithChunk(aggregationID string, chunkID uint64) *zap.Logger {
	return Logger.With(zap.String("aggregation_id", aggregationID), zap.Uint64("chunk_id", chunkID))
}

// WithQuery returns a child logger scoped to one planned query, keyed by
// the uuid Planner.Query stamps onto every QueryResult for cross-log
// correlation.
func WithQuery(queryID string) *zap.Logger {
	return Logger.With(zap.String("query_id", queryID))
}

// Sync flushes any buffered log entries; callers should defer it from
// main().
func Sync() error {
	return Logger.Sync()
}
