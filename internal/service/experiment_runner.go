package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"lm-bench/internal/config"
	"lm-bench/internal/experiment"
	"lm-bench/internal/model"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	logFile      = "run.log"
	errFile      = "run.err"
	exitCodeFile = "exitcode"
	runScript    = "run"
	runsPerDir   = 100
)

type ExperimentRunRequest struct {
	Name    string `json:"name"`
	TestRun bool   `json:"test_run"`
	// SkipParse leaves parsing to a later parse step.
	SkipParse bool `json:"skip_parse"`
}

type ExperimentRunResult struct {
	ExperimentID uint          `json:"experiment_id"`
	UUID         string        `json:"uuid"`
	Environment  string        `json:"environment"`
	Dir          string        `json:"dir"`
	Algorithms   []string      `json:"algorithms"`
	Runs         int           `json:"runs"`
	Finished     int           `json:"finished"`
	Failed       int           `json:"failed"`
	JobScripts   []string      `json:"job_scripts,omitempty"`
	JobIDs       []string      `json:"job_ids,omitempty"`
	Parse        *ParseSummary `json:"parse,omitempty"`
	Errors       []string      `json:"errors"`
}

type ExperimentRunner struct {
	db     *gorm.DB
	cfg    *config.Config
	parse  *ParseStep
	logger *slog.Logger
	tracer trace.Tracer
	getenv func(string) string

	// background tracks batches started by Start.
	background sync.WaitGroup
}

func NewExperimentRunner(conn *gorm.DB, cfg *config.Config, parse *ParseStep, logger *slog.Logger) *ExperimentRunner {
	return &ExperimentRunner{
		db:     conn,
		cfg:    cfg,
		parse:  parse,
		logger: logger,
		tracer: otel.Tracer("lm-bench/service"),
		getenv: os.Getenv,
	}
}

// Configs generates the run configurations of the configured experiment.
func (r *ExperimentRunner) Configs() ([]experiment.RunConfiguration, error) {
	return experiment.Generate(r.cfg.Experiment.Spec())
}

// Run prepares a batch and executes it in the environment chosen by
// req.TestRun. Local batches run to completion and are parsed; Slurm batches
// are submitted and parsed later.
func (r *ExperimentRunner) Run(ctx context.Context, req ExperimentRunRequest) (*ExperimentRunResult, error) {
	exp, runs, env, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	result := newRunResult(exp, env, len(runs))
	if err := r.execute(ctx, req, exp, runs, env, result); err != nil {
		return result, err
	}
	return result, nil
}

// Start prepares a batch and executes it in the background. Configuration
// errors are returned immediately; the execution itself is not bound to ctx,
// so it survives the caller going away. Progress is visible in the run rows.
func (r *ExperimentRunner) Start(ctx context.Context, req ExperimentRunRequest) (*ExperimentRunResult, error) {
	exp, runs, env, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		result := newRunResult(exp, env, len(runs))
		if err := r.execute(bg, req, exp, runs, env, result); err != nil {
			r.logger.Error("experiment failed", "experiment", exp.UUID, "error", err)
		}
	}()

	return newRunResult(exp, env, len(runs)), nil
}

// Wait blocks until all batches started by Start are done.
func (r *ExperimentRunner) Wait() {
	r.background.Wait()
}

func newRunResult(exp *model.Experiment, env experiment.Environment, runs int) *ExperimentRunResult {
	return &ExperimentRunResult{
		ExperimentID: exp.ID,
		UUID:         exp.UUID,
		Environment:  env.Kind(),
		Dir:          exp.Dir,
		Algorithms:   exp.Algorithms(),
		Runs:         runs,
	}
}

func (r *ExperimentRunner) execute(ctx context.Context, req ExperimentRunRequest, exp *model.Experiment, runs []model.Run, env experiment.Environment, result *ExperimentRunResult) error {
	switch e := env.(type) {
	case experiment.LocalEnvironment:
		r.runLocal(ctx, e, runs, result)
	case experiment.SlurmEnvironment:
		return r.submitSlurm(ctx, e, exp, runs, result)
	}

	if !req.SkipParse {
		summary, err := r.parse.ParseExperiment(ctx, exp.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("experiment=%d parse failed: %v", exp.ID, err))
		}
		result.Parse = summary
	}

	r.logger.Info("experiment finished",
		"experiment", exp.UUID,
		"runs", result.Runs,
		"finished", result.Finished,
		"failed", result.Failed,
	)
	return nil
}

// Prepare validates the setup, persists the experiment with all its runs and
// creates the run directories. Nothing is executed.
func (r *ExperimentRunner) Prepare(ctx context.Context, req ExperimentRunRequest) (*model.Experiment, []model.Run, experiment.Environment, error) {
	name := req.Name
	if name == "" {
		name = r.cfg.Experiment.Name
	}
	if err := experiment.ValidateName(name); err != nil {
		return nil, nil, nil, err
	}
	benchmarksDir, err := experiment.BenchmarksDir(r.getenv)
	if err != nil {
		return nil, nil, nil, err
	}
	configs, err := r.Configs()
	if err != nil {
		return nil, nil, nil, err
	}
	tasks, err := experiment.ResolveSuite(benchmarksDir, r.cfg.Experiment.SuiteFor(req.TestRun))
	if err != nil {
		return nil, nil, nil, err
	}
	planned, err := experiment.Plan(r.cfg.Experiment.Revisions, configs, tasks)
	if err != nil {
		return nil, nil, nil, err
	}
	env := experiment.SelectEnvironment(req.TestRun, r.cfg.Environment.Local, r.cfg.Environment.Slurm)
	if slurm, ok := env.(experiment.SlurmEnvironment); ok && slurm.Partition == "" {
		return nil, nil, nil, &experiment.ConfigurationError{
			Field:   "environment.slurm.partition",
			Message: "partition is required for cluster runs",
		}
	}

	id := uuid.NewString()
	dir, err := filepath.Abs(filepath.Join(r.cfg.Experiment.Dir, name+"-"+id[:8]))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to resolve experiment dir: %w", err)
	}

	revisionsJSON, _ := json.Marshal(r.cfg.Experiment.Revisions)
	algorithmsJSON, _ := json.Marshal(experiment.Algorithms(r.cfg.Experiment.Revisions, configs))
	exp := &model.Experiment{
		UUID:           id,
		Name:           name,
		Environment:    env.Kind(),
		TestRun:        req.TestRun,
		Dir:            dir,
		RevisionsJSON:  string(revisionsJSON),
		AlgorithmsJSON: string(algorithmsJSON),
		RunCount:       len(planned),
	}

	runs := make([]model.Run, len(planned))
	for i, p := range planned {
		commandJSON, _ := json.Marshal(r.command(p))
		runs[i] = model.Run{
			RunIndex:    i + 1,
			Algorithm:   p.Algorithm,
			Revision:    p.Revision,
			ConfigName:  p.Config.Name(),
			Build:       p.Config.Build(),
			Domain:      p.Task.Domain,
			Problem:     p.Task.Problem,
			CommandJSON: string(commandJSON),
			Status:      model.RunPlanned,
			Dir:         filepath.Join(dir, runDirName(i+1)),
		}
	}

	for i := range runs {
		if err := os.MkdirAll(runs[i].Dir, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create run dir: %w", err)
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exp).Error; err != nil {
			return err
		}
		for i := range runs {
			runs[i].ExperimentID = exp.ID
		}
		return tx.CreateInBatches(runs, 100).Error
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	r.logger.Info("experiment prepared",
		"experiment", exp.UUID,
		"environment", env.Kind(),
		"configs", len(configs),
		"tasks", len(tasks),
		"runs", len(runs),
	)
	return exp, runs, env, nil
}

// command builds the driver invocation:
// driver [driver options] domain problem [component options].
// Runs execute inside their run directory, so a driver given as a path is made
// absolute; a bare name is left to the PATH lookup.
func (r *ExperimentRunner) command(p experiment.PlannedRun) []string {
	driver := strings.ReplaceAll(r.cfg.Planner.Driver, "{revision}", p.Revision)
	if strings.ContainsRune(driver, '/') || strings.ContainsRune(driver, filepath.Separator) {
		driver = absPath(driver)
	}
	argv := []string{driver}
	argv = append(argv, p.Config.DriverOptions()...)
	argv = append(argv, absPath(p.Task.DomainFile), absPath(p.Task.ProblemFile))
	return append(argv, p.Config.Args()...)
}

func (r *ExperimentRunner) runLocal(ctx context.Context, env experiment.LocalEnvironment, runs []model.Run, result *ExperimentRunResult) {
	type outcome struct {
		idx int
		res *processResult
		err error
	}

	processes := env.Processes
	if processes <= 0 {
		processes = experiment.DefaultLocalProcesses
	}
	timeout := r.runTimeout()

	jobs := make(chan int)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < processes; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := r.executeRun(ctx, &runs[i], timeout)
				outcomes <- outcome{idx: i, res: res, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range runs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// database writes stay on this goroutine
	for o := range outcomes {
		run := &runs[o.idx]
		if o.res != nil {
			run.WallTime = o.res.Duration.Seconds()
		}
		if o.err != nil {
			run.Status = model.RunFailed
			run.Error = o.err.Error()
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("run=%d algorithm=%s task=%s:%s execute failed: %v",
				run.RunIndex, run.Algorithm, run.Domain, run.Problem, o.err))
		} else {
			code := o.res.ExitCode
			run.ExitCode = &code
			run.Status = model.RunFinished
			result.Finished++
		}
		if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("run=%d save failed: %v", run.RunIndex, err))
		}
	}
}

// runTimeout bounds the wall-clock time of one local run. Translation is not
// covered by the search time limit, so a run gets twice that limit.
func (r *ExperimentRunner) runTimeout() time.Duration {
	limit := r.cfg.Experiment.SearchTimeLimit
	if limit == "" {
		limit = experiment.DefaultSearchTimeLimit
	}
	d, err := experiment.ParseTimeLimit(limit)
	if err != nil {
		return 0
	}
	return 2 * d
}

func (r *ExperimentRunner) executeRun(ctx context.Context, run *model.Run, timeout time.Duration) (*processResult, error) {
	ctx, span := r.tracer.Start(ctx, "planner.run", trace.WithAttributes(
		attribute.String("algorithm", run.Algorithm),
		attribute.String("domain", run.Domain),
		attribute.String("problem", run.Problem),
	))
	defer span.End()

	argv := run.Command()
	if len(argv) == 0 {
		return nil, fmt.Errorf("run %d has no command", run.RunIndex)
	}

	res, err := runProcess(ctx, processConfig{Command: argv[0], Args: argv[1:], WorkDir: run.Dir, Timeout: timeout})
	if res != nil {
		if werr := writeRunOutput(run.Dir, res); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Int("exit_code", res.ExitCode))
	r.logger.Debug("run finished", "run", run.RunIndex, "algorithm", run.Algorithm, "exit_code", res.ExitCode)
	return res, nil
}

func writeRunOutput(dir string, res *processResult) error {
	if err := os.WriteFile(filepath.Join(dir, logFile), res.Stdout, 0o644); err != nil {
		return fmt.Errorf("failed to write run log: %w", err)
	}
	if len(res.Stderr) > 0 {
		if err := os.WriteFile(filepath.Join(dir, errFile), res.Stderr, 0o644); err != nil {
			return fmt.Errorf("failed to write run errors: %w", err)
		}
	}
	return os.WriteFile(filepath.Join(dir, exitCodeFile), []byte(strconv.Itoa(res.ExitCode)+"\n"), 0o644)
}

// runDirName groups runs into directories of runsPerDir entries, e.g.
// runs-00101-00200/00123.
func runDirName(index int) string {
	lo := ((index-1)/runsPerDir)*runsPerDir + 1
	return filepath.Join(fmt.Sprintf("runs-%05d-%05d", lo, lo+runsPerDir-1), fmt.Sprintf("%05d", index))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
