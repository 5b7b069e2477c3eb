package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stackdhq/stackd/internal/types"
)

// Pipeline step labels attached to log entries.
const (
	StepInit   = "terraform_init"
	StepPlan   = "terraform_plan"
	StepApply  = "terraform_apply"
	StepOutput = "terraform_output"
)

// PlanFileName is the saved plan consumed by apply.
const PlanFileName = "tfplan"

// PipelineSteps lists the fixed command sequence in execution order.
var PipelineSteps = []string{StepInit, StepPlan, StepApply, StepOutput}

// Sink receives pipeline progress. The orchestrator implements it to append
// job logs and publish step transitions.
type Sink interface {
	Log(level, message, step string)
	StepStarted(step string)
}

// Runner executes the fixed init/plan/apply/output pipeline in a workspace.
type Runner struct {
	exec Executor
}

// NewRunner creates a Runner over the given executor.
func NewRunner(exec Executor) *Runner {
	return &Runner{exec: exec}
}

// Execute runs the pipeline in dir. A non-zero exit at init, plan or apply
// aborts the remaining steps and returns a classified *CommandError. The
// final output step is best-effort: on failure or malformed JSON the job
// still succeeds with an empty output map and a WARNING log.
func (r *Runner) Execute(ctx context.Context, dir string, action types.JobAction, sink Sink) (map[string]interface{}, error) {
	planArgs := []string{"plan", "-out=" + PlanFileName}
	if action == types.ActionDestroy {
		planArgs = []string{"plan", "-destroy", "-out=" + PlanFileName}
	}

	steps := []struct {
		name string
		args []string
	}{
		{StepInit, []string{"init"}},
		{StepPlan, planArgs},
		{StepApply, []string{"apply", "-auto-approve", PlanFileName}},
	}

	for _, step := range steps {
		sink.StepStarted(step.name)
		if _, err := r.runStep(ctx, dir, step.name, step.args, sink); err != nil {
			return nil, err
		}
	}

	sink.StepStarted(StepOutput)
	res, err := r.runStep(ctx, dir, StepOutput, []string{"output", "-json"}, sink)
	if err != nil {
		sink.Log(types.LogLevelWarning, fmt.Sprintf("failed to read outputs: %v", err), StepOutput)
		return map[string]interface{}{}, nil
	}

	output := map[string]interface{}{}
	if strings.TrimSpace(res.Stdout) != "" {
		if jsonErr := json.Unmarshal([]byte(res.Stdout), &output); jsonErr != nil {
			sink.Log(types.LogLevelWarning, "failed to parse terraform outputs", StepOutput)
			return map[string]interface{}{}, nil
		}
	}
	return output, nil
}

// runStep executes one command, logging stdout at INFO and stderr at WARNING
// on success or ERROR on failure.
func (r *Runner) runStep(ctx context.Context, dir, step string, args []string, sink Sink) (Result, error) {
	sink.Log(types.LogLevelInfo, "Executing: terraform "+strings.Join(args, " "), step)

	res, err := r.exec.Run(ctx, dir, args...)
	if err != nil {
		return res, &CommandError{
			Step:     step,
			Category: Classify(err.Error()),
			ExitCode: -1,
			Stderr:   err.Error(),
		}
	}

	success := res.ExitCode == 0
	if res.Stdout != "" {
		sink.Log(types.LogLevelInfo, "STDOUT: "+res.Stdout, step)
	}
	if res.Stderr != "" {
		level := types.LogLevelWarning
		if !success {
			level = types.LogLevelError
		}
		sink.Log(level, "STDERR: "+res.Stderr, step)
	}

	if !success {
		return res, &CommandError{
			Step:     step,
			Category: Classify(res.Stderr),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}
