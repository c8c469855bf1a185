package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"lm-bench/internal/config"
	"lm-bench/internal/model"
	"lm-bench/internal/parser"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type ParseSummary struct {
	Parsed      int      `json:"parsed"`
	Unparseable int      `json:"unparseable"`
	Pending     int      `json:"pending"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors"`
}

// ParseStep extracts metrics from run logs into the database. It can be
// repeated after changing the rules.
type ParseStep struct {
	db        *gorm.DB
	extractor *parser.Parser
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewParseStep(conn *gorm.DB, extractor *parser.Parser, logger *slog.Logger) *ParseStep {
	return &ParseStep{
		db:        conn,
		extractor: extractor,
		logger:    logger,
		tracer:    otel.Tracer("lm-bench/service"),
	}
}

// BuildExtractor combines the search and landmark rules with the extra rules
// of the configuration. Duplicate fields are rejected here, before any run.
func BuildExtractor(rules []config.RuleConfig) (*parser.Parser, error) {
	extra := parser.New()
	for _, r := range rules {
		typ, err := parser.ParseType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("metric rule %q: %w", r.Field, err)
		}
		if err := extra.AddPattern(r.Field, r.Pattern, typ); err != nil {
			return nil, fmt.Errorf("metric rule %q: %w", r.Field, err)
		}
	}
	return parser.Merge(parser.SearchParser(), parser.LandmarkParser(), extra)
}

// Extract applies the extraction rules to one log text.
func (s *ParseStep) Extract(text string) (parser.Result, error) {
	return s.extractor.Parse(text)
}

// ParseExperiment parses every run of an experiment. A run whose log cannot
// be parsed is marked unparseable; the other runs are unaffected.
func (s *ParseStep) ParseExperiment(ctx context.Context, experimentID uint) (*ParseSummary, error) {
	ctx, span := s.tracer.Start(ctx, "experiment.parse", trace.WithAttributes(
		attribute.Int("experiment_id", int(experimentID)),
	))
	defer span.End()

	var runs []model.Run
	if err := s.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("run_index").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	summary := &ParseSummary{}
	for i := range runs {
		run := &runs[i]
		changed, err := s.parseRun(run, summary)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("run=%d algorithm=%s task=%s:%s: %v",
				run.RunIndex, run.Algorithm, run.Domain, run.Problem, err))
		}
		if !changed {
			continue
		}
		if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
			return summary, fmt.Errorf("failed to save run %d: %w", run.RunIndex, err)
		}
	}

	s.logger.Info("experiment parsed",
		"experiment_id", experimentID,
		"parsed", summary.Parsed,
		"unparseable", summary.Unparseable,
		"pending", summary.Pending,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (s *ParseStep) parseRun(run *model.Run, summary *ParseSummary) (bool, error) {
	if run.Status == model.RunFailed {
		summary.Failed++
		return false, nil
	}

	changed := false
	if run.ExitCode == nil {
		code, ok, err := readExitCode(run.Dir)
		if err != nil {
			summary.Pending++
			return false, err
		}
		if !ok {
			summary.Pending++
			return false, nil
		}
		run.ExitCode = &code
		changed = true
	}

	text, err := os.ReadFile(filepath.Join(run.Dir, logFile))
	if err != nil {
		summary.Pending++
		return changed, fmt.Errorf("failed to read run log: %w", err)
	}

	metrics, err := s.extractor.Parse(string(text))
	var parseErr *parser.MetricParseError
	if errors.As(err, &parseErr) {
		run.Status = model.RunUnparseable
		run.ParseError = err.Error()
		run.MetricsJSON = ""
		summary.Unparseable++
		return true, err
	}
	if err != nil {
		return changed, err
	}

	b, err := json.Marshal(metrics)
	if err != nil {
		return changed, fmt.Errorf("failed to encode metrics: %w", err)
	}
	run.MetricsJSON = string(b)
	run.ParseError = ""
	run.Status = model.RunParsed
	summary.Parsed++
	return true, nil
}

// readExitCode reads the exit code written by the run script. ok is false if
// the run has not finished yet.
func readExitCode(dir string) (code int, ok bool, err error) {
	b, err := os.ReadFile(filepath.Join(dir, exitCodeFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	code, err = strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, false, fmt.Errorf("invalid exit code file: %w", err)
	}
	return code, true, nil
}
