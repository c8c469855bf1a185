package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"lm-bench/internal/model"
	"lm-bench/internal/parser"

	"gorm.io/gorm"
)

// DefaultAttributes are reported when the configuration names none.
var DefaultAttributes = []string{
	parser.FieldCost,
	parser.FieldExpansions,
	parser.FieldSearchTime,
	parser.FieldTotalTime,
	parser.FieldGenerationTime,
	parser.FieldLandmarks,
	parser.FieldLandmarksDisjunctive,
	parser.FieldLandmarksConjunctive,
	parser.FieldOrderings,
}

type ReportOptions struct {
	Attributes     []string
	ExcludeDomains []string
	TimeBounds     []float64
}

// AttributeTable sums one attribute per domain and algorithm over the runs
// that report it.
type AttributeTable struct {
	Attribute string                        `json:"attribute"`
	Sums      map[string]map[string]float64 `json:"sums"` // domain -> algorithm -> sum
	Totals    map[string]float64            `json:"totals"`
}

type Report struct {
	Experiment     *model.Experiment         `json:"experiment"`
	Algorithms     []string                  `json:"algorithms"`
	Domains        []string                  `json:"domains"`
	Coverage       map[string]CoverageStats  `json:"coverage"`
	DomainCoverage map[string]map[string]int `json:"domain_coverage"`
	Tables         []AttributeTable          `json:"tables"`
	Comparisons    []Comparison              `json:"comparisons"`
	Curves         map[string]CoverageCurve  `json:"curves"`
	Unparseable    []string                  `json:"unparseable"`
}

type ReportService struct {
	db   *gorm.DB
	opts ReportOptions
}

func NewReportService(conn *gorm.DB, opts ReportOptions) *ReportService {
	return &ReportService{db: conn, opts: opts}
}

// Report loads an experiment by id or uuid and builds its report.
func (s *ReportService) Report(ctx context.Context, ref string) (*Report, error) {
	exp, err := FindExperiment(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}

	var runs []model.Run
	if err := s.db.WithContext(ctx).
		Where("experiment_id = ?", exp.ID).
		Order("run_index").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	return BuildReport(exp, runs, s.opts), nil
}

// FindExperiment looks an experiment up by numeric id or uuid.
func FindExperiment(ctx context.Context, conn *gorm.DB, ref string) (*model.Experiment, error) {
	var exp model.Experiment
	query := conn.WithContext(ctx)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("uuid = ?", ref)
	}
	if err := query.First(&exp).Error; err != nil {
		return nil, fmt.Errorf("experiment %s not found: %w", ref, err)
	}
	return &exp, nil
}

// BuildReport aggregates runs of one experiment. Runs of excluded domains are
// dropped before any aggregation.
func BuildReport(exp *model.Experiment, runs []model.Run, opts ReportOptions) *Report {
	if len(opts.Attributes) == 0 {
		opts.Attributes = DefaultAttributes
	}
	if len(opts.TimeBounds) == 0 {
		opts.TimeBounds = DefaultTimeBounds
	}
	excluded := make(map[string]bool, len(opts.ExcludeDomains))
	for _, d := range opts.ExcludeDomains {
		excluded[d] = true
	}

	r := &Report{
		Experiment:     exp,
		Algorithms:     exp.Algorithms(),
		Coverage:       map[string]CoverageStats{},
		DomainCoverage: map[string]map[string]int{},
		Curves:         map[string]CoverageCurve{},
	}

	byAlgorithm := map[string][]model.Run{}
	domains := map[string]bool{}
	for _, run := range runs {
		if excluded[run.Domain] {
			continue
		}
		if _, ok := byAlgorithm[run.Algorithm]; !ok && !contains(r.Algorithms, run.Algorithm) {
			r.Algorithms = append(r.Algorithms, run.Algorithm)
		}
		byAlgorithm[run.Algorithm] = append(byAlgorithm[run.Algorithm], run)
		domains[run.Domain] = true

		if r.DomainCoverage[run.Domain] == nil {
			r.DomainCoverage[run.Domain] = map[string]int{}
		}
		if run.Solved() {
			r.DomainCoverage[run.Domain][run.Algorithm]++
		}
		if run.Status == model.RunUnparseable {
			r.Unparseable = append(r.Unparseable, fmt.Sprintf("%s %s:%s: %s", run.Algorithm, run.Domain, run.Problem, run.ParseError))
		}
	}
	for d := range domains {
		r.Domains = append(r.Domains, d)
	}
	sort.Strings(r.Domains)

	for _, algo := range r.Algorithms {
		r.Coverage[algo] = calcCoverage(byAlgorithm[algo])
		r.Curves[algo] = BuildCoverageCurve(byAlgorithm[algo], opts.TimeBounds)
	}
	r.Comparisons = CompareCoverage(r.Algorithms, r.Coverage)

	for _, attr := range opts.Attributes {
		table := AttributeTable{
			Attribute: attr,
			Sums:      map[string]map[string]float64{},
			Totals:    map[string]float64{},
		}
		for _, algo := range r.Algorithms {
			for _, run := range byAlgorithm[algo] {
				m, err := run.Metrics()
				if err != nil {
					continue
				}
				v, ok := m[attr].(float64)
				if !ok {
					continue
				}
				if table.Sums[run.Domain] == nil {
					table.Sums[run.Domain] = map[string]float64{}
				}
				table.Sums[run.Domain][algo] += v
				table.Totals[algo] += v
			}
		}
		r.Tables = append(r.Tables, table)
	}
	return r
}

// RenderReportMarkdown renders an absolute report.
func RenderReportMarkdown(r *Report) string {
	var b strings.Builder
	b.WriteString("# Landmark benchmark report\n\n")
	if r.Experiment != nil {
		b.WriteString(fmt.Sprintf("- experiment: %s (%s)\n", r.Experiment.Name, r.Experiment.UUID))
		b.WriteString(fmt.Sprintf("- environment: %s\n", r.Experiment.Environment))
		b.WriteString(fmt.Sprintf("- runs: %d\n", r.Experiment.RunCount))
		b.WriteString(fmt.Sprintf("- created_at: %s\n", r.Experiment.CreatedAt.Format(time.RFC3339)))
	}
	b.WriteString(fmt.Sprintf("- domains: %d\n\n", len(r.Domains)))

	header := "| domain | " + strings.Join(r.Algorithms, " | ") + " |\n"
	align := "| --- |" + strings.Repeat(" ---: |", len(r.Algorithms)) + "\n"

	b.WriteString("## coverage\n\n")
	b.WriteString(header)
	b.WriteString(align)
	for _, d := range r.Domains {
		b.WriteString("| " + d + " |")
		for _, algo := range r.Algorithms {
			b.WriteString(fmt.Sprintf(" %d |", r.DomainCoverage[d][algo]))
		}
		b.WriteString("\n")
	}
	b.WriteString("| **Sum** |")
	for _, algo := range r.Algorithms {
		b.WriteString(fmt.Sprintf(" **%d** |", r.Coverage[algo].Solved))
	}
	b.WriteString("\n\n")

	b.WriteString("| algorithm | N | solved | coverage | CI95 |\n")
	b.WriteString("| --- | ---: | ---: | ---: | --- |\n")
	for _, algo := range r.Algorithms {
		s := r.Coverage[algo]
		b.WriteString(fmt.Sprintf("| %s | %d | %d | %.3f | [%.3f, %.3f] |\n",
			algo, s.N, s.Solved, s.Coverage, s.CI95Low, s.CI95High))
	}
	b.WriteString("\n")

	for _, t := range r.Tables {
		b.WriteString("## " + t.Attribute + "\n\n")
		if len(t.Totals) == 0 {
			b.WriteString("- not reported by any run\n\n")
			continue
		}
		b.WriteString(header)
		b.WriteString(align)
		for _, d := range r.Domains {
			b.WriteString("| " + d + " |")
			for _, algo := range r.Algorithms {
				if v, ok := t.Sums[d][algo]; ok {
					b.WriteString(" " + formatValue(v) + " |")
				} else {
					b.WriteString(" - |")
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("| **Sum** |")
		for _, algo := range r.Algorithms {
			b.WriteString(" **" + formatValue(t.Totals[algo]) + "** |")
		}
		b.WriteString("\n\n")
	}

	if len(r.Algorithms) > 0 {
		b.WriteString("## coverage over time\n\n")
		bounds := r.Curves[r.Algorithms[0]].Bounds
		b.WriteString("| algorithm |")
		for _, bound := range bounds {
			b.WriteString(fmt.Sprintf(" <= %gs |", bound))
		}
		b.WriteString("\n| --- |" + strings.Repeat(" ---: |", len(bounds)) + "\n")
		for _, algo := range r.Algorithms {
			b.WriteString("| " + algo + " |")
			for _, c := range r.Curves[algo].Coverage {
				b.WriteString(fmt.Sprintf(" %.3f |", c))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(r.Comparisons) > 0 {
		b.WriteString("## coverage comparison\n\n")
		b.WriteString("| a | b | z | p |\n| --- | --- | ---: | ---: |\n")
		for _, c := range r.Comparisons {
			b.WriteString(fmt.Sprintf("| %s | %s | %.3f | %.4f |\n", c.A, c.B, c.Z, c.PValue))
		}
		b.WriteString("\n")
	}

	if len(r.Unparseable) > 0 {
		b.WriteString("## unparseable runs\n\n")
		max := len(r.Unparseable)
		if max > 20 {
			max = 20
		}
		for i := 0; i < max; i++ {
			b.WriteString(fmt.Sprintf("- %s\n", r.Unparseable[i]))
		}
		if len(r.Unparseable) > max {
			b.WriteString(fmt.Sprintf("- ...(%d more)\n", len(r.Unparseable)-max))
		}
	}
	return b.String()
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
