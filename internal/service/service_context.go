package service

import (
	"log/slog"

	"lm-bench/internal/config"

	"gorm.io/gorm"
)

type ServiceContext struct {
	Runner  *ExperimentRunner
	Parse   *ParseStep
	Reports *ReportService
	DB      *gorm.DB
}

// NewServiceContext wires the services. It fails on invalid metric rules so
// that no experiment starts with a broken extractor.
func NewServiceContext(cfg *config.Config, conn *gorm.DB, logger *slog.Logger) (*ServiceContext, error) {
	extractor, err := BuildExtractor(cfg.Metrics.Rules)
	if err != nil {
		return nil, err
	}

	parse := NewParseStep(conn, extractor, logger)
	return &ServiceContext{
		Runner: NewExperimentRunner(conn, cfg, parse, logger),
		Parse:  parse,
		Reports: NewReportService(conn, ReportOptions{
			Attributes:     cfg.Report.Attributes,
			ExcludeDomains: cfg.Report.ExcludeDomains,
		}),
		DB: conn,
	}, nil
}
