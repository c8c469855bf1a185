package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"lm-bench/internal/experiment"
	"lm-bench/internal/model"
)

const (
	jobScriptFile = "slurm-job.sh"
	runDirsFile   = "run-dirs.txt"
)

var submittedJobRe = regexp.MustCompile(`Submitted batch job (\d+)`)

var jobTemplate = template.Must(template.New("job").Parse(`#!/bin/bash
#SBATCH --job-name={{.Name}}
#SBATCH --partition={{.Env.Partition}}
{{- if .Env.QOS}}
#SBATCH --qos={{.Env.QOS}}
{{- end}}
{{- if .Env.MemoryPerCPU}}
#SBATCH --mem-per-cpu={{.Env.MemoryPerCPU}}
{{- end}}
{{- if .Env.TimeLimitPerTask}}
#SBATCH --time={{.Env.TimeLimitPerTask}}
{{- end}}
#SBATCH --nice={{.Env.Nice}}
{{- if .Env.Email}}
#SBATCH --mail-type=END,FAIL
#SBATCH --mail-user={{.Env.Email}}
{{- end}}
#SBATCH --array=1-{{.Tasks}}
#SBATCH --output={{.Dir}}/slurm-%A_%a.out
#SBATCH --error={{.Dir}}/slurm-%A_%a.err
{{- if .Env.Setup}}

{{.Env.Setup}}
{{- end}}

RUN_DIR=$(sed -n "$((SLURM_ARRAY_TASK_ID + {{.Offset}}))p" {{.Dir}}/` + runDirsFile + `)
cd "$RUN_DIR" && ./` + runScript + `
`))

// jobChunk is one array job covering runs[Offset:Offset+Tasks].
type jobChunk struct {
	Offset int
	Tasks  int
}

func splitArray(runs, maxTasks int) []jobChunk {
	if maxTasks <= 0 {
		maxTasks = experiment.DefaultMaxArrayTasks
	}
	var chunks []jobChunk
	for offset := 0; offset < runs; offset += maxTasks {
		chunks = append(chunks, jobChunk{Offset: offset, Tasks: min(maxTasks, runs-offset)})
	}
	return chunks
}

func jobScriptName(i, n int) string {
	if n == 1 {
		return jobScriptFile
	}
	return fmt.Sprintf("slurm-job-%03d.sh", i+1)
}

// RenderJobScripts returns the sbatch array jobs of a batch. Each job has at
// most env.MaxArrayTasks tasks; task i of a job runs line offset+i of the run
// list.
func RenderJobScripts(env experiment.SlurmEnvironment, exp *model.Experiment, runs []model.Run) ([]string, error) {
	chunks := splitArray(len(runs), env.MaxArrayTasks)
	scripts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		name := exp.Name
		if len(chunks) > 1 {
			name = fmt.Sprintf("%s-%d", exp.Name, i+1)
		}
		var buf bytes.Buffer
		err := jobTemplate.Execute(&buf, struct {
			Name   string
			Env    experiment.SlurmEnvironment
			Dir    string
			Tasks  int
			Offset int
		}{name, env, exp.Dir, c.Tasks, c.Offset})
		if err != nil {
			return nil, fmt.Errorf("failed to render job script: %w", err)
		}
		scripts = append(scripts, buf.String())
	}
	return scripts, nil
}

// RenderRunScript returns the shell script executed by one array task. It
// records the exit code next to the logs for the parse step.
func RenderRunScript(run *model.Run) string {
	quoted := make([]string, 0, len(run.Command()))
	for _, arg := range run.Command() {
		quoted = append(quoted, shellQuote(arg))
	}
	return "#!/bin/sh\n" +
		"cd " + shellQuote(run.Dir) + " || exit 1\n" +
		strings.Join(quoted, " ") + " > " + logFile + " 2> " + errFile + "\n" +
		"echo $? > " + exitCodeFile + "\n"
}

// parseJobID extracts the job id from sbatch output.
func parseJobID(output string) (string, bool) {
	m := submittedJobRe.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// submitSlurm submits one array job per chunk. Runs of a chunk are marked
// submitted as soon as its job is accepted, so a failure half way leaves the
// remaining runs planned.
func (r *ExperimentRunner) submitSlurm(ctx context.Context, env experiment.SlurmEnvironment, exp *model.Experiment, runs []model.Run, result *ExperimentRunResult) error {
	dirs := make([]string, 0, len(runs))
	for i := range runs {
		if err := os.WriteFile(filepath.Join(runs[i].Dir, runScript), []byte(RenderRunScript(&runs[i])), 0o755); err != nil {
			return fmt.Errorf("failed to write run script: %w", err)
		}
		dirs = append(dirs, runs[i].Dir)
	}
	if err := os.WriteFile(filepath.Join(exp.Dir, runDirsFile), []byte(strings.Join(dirs, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write run list: %w", err)
	}

	scripts, err := RenderJobScripts(env, exp, runs)
	if err != nil {
		return err
	}
	chunks := splitArray(len(runs), env.MaxArrayTasks)

	for i, script := range scripts {
		scriptPath := filepath.Join(exp.Dir, jobScriptName(i, len(scripts)))
		if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
			return fmt.Errorf("failed to write job script: %w", err)
		}
		result.JobScripts = append(result.JobScripts, scriptPath)

		res, err := runProcess(ctx, processConfig{Command: r.cfg.Environment.SubmitCommand, Args: []string{scriptPath}, WorkDir: exp.Dir})
		if err != nil {
			return fmt.Errorf("failed to submit job %s: %w", scriptPath, err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("job submission of %s exited with %d: %s", scriptPath, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
		}

		output := strings.TrimSpace(string(res.Stdout))
		if jobID, ok := parseJobID(output); ok {
			result.JobIDs = append(result.JobIDs, jobID)
			exp.SlurmJobIDs = strings.Join(result.JobIDs, ",")
			if err := r.db.WithContext(ctx).Model(exp).Update("slurm_job_ids", exp.SlurmJobIDs).Error; err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("experiment=%d job id update failed: %v", exp.ID, err))
			}
		} else {
			r.logger.Warn("no job id in submit output", "experiment", exp.UUID, "script", scriptPath, "output", output)
		}

		c := chunks[i]
		if err := r.db.WithContext(ctx).Model(&model.Run{}).
			Where("experiment_id = ? AND run_index BETWEEN ? AND ?", exp.ID, runs[c.Offset].RunIndex, runs[c.Offset+c.Tasks-1].RunIndex).
			Update("status", model.RunSubmitted).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("experiment=%d status update failed: %v", exp.ID, err))
		}

		r.logger.Info("job submitted",
			"experiment", exp.UUID,
			"script", scriptPath,
			"tasks", c.Tasks,
			"output", output,
		)
	}
	return nil
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == '=' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
