// Package logging builds the structured logger EVOO's components share: a
// zap core exposed through the logr interface, matching the
// zap/zapr/logr pairing used throughout the teacher codebase.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logr.Logger backed by zap. level is one of zap's standard
// level strings ("debug", "info", "warn", "error"); an unrecognised value
// falls back to "info".
func New(level string, jsonFormat bool) (logr.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if !jsonFormat {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// RunFields returns the structured key/value pairs identifying one run,
// for consistent correlation across Plan/Execute/Evaluate/Learn log lines.
func RunFields(runIndex int, incidentID, incidentType string) []any {
	return []any{
		"run_index", runIndex,
		"incident_id", incidentID,
		"incident_type", incidentType,
	}
}

// StrategyFields returns the structured fields identifying a chosen
// strategy, appended to RunFields by callers that already picked one.
func StrategyFields(strategy string, isExploratory bool) []any {
	return []any{
		"strategy", strategy,
		"exploratory", isExploratory,
	}
}
