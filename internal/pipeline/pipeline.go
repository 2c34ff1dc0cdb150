// Package pipeline runs the refresh, write and send steps in order once a
// round has cleared its buffer window.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"newsletterbot/internal/config"
)

// Step is one re-runnable stage of the pipeline.
type Step interface {
	Name() string
	Run(ctx context.Context) error
}

// StepError names the step that stopped the run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CommandStep runs an external process; a non-zero exit fails the step.
type CommandStep struct {
	StepName string
	Command  []string
	Dir      string
	Env      []string
}

func (s CommandStep) Name() string { return s.StepName }

func (s CommandStep) Run(ctx context.Context) error {
	if len(s.Command) == 0 {
		return fmt.Errorf("no command configured")
	}
	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	return cmd.Run()
}

// FuncStep adapts an in-process function to Step.
type FuncStep struct {
	StepName string
	Fn       func(ctx context.Context) error
}

func (s FuncStep) Name() string                  { return s.StepName }
func (s FuncStep) Run(ctx context.Context) error { return s.Fn(ctx) }

type Trigger struct {
	Steps []Step
}

func NewTrigger(steps ...Step) *Trigger {
	return &Trigger{Steps: steps}
}

// Run executes every step in order and stops at the first failure. Steps
// that already ran are not rolled back; each step is safe to re-run.
func (t *Trigger) Run(ctx context.Context, round int) error {
	runID := uuid.NewString()
	log.Printf("pipeline start run=%s round=%d steps=%d", runID, round, len(t.Steps))

	for i, step := range t.Steps {
		start := time.Now()
		log.Printf("pipeline step start run=%s step=%d/%d name=%s", runID, i+1, len(t.Steps), step.Name())
		if err := step.Run(ctx); err != nil {
			log.Printf("pipeline step failed run=%s name=%s err=%v", runID, step.Name(), err)
			return &StepError{Step: step.Name(), Err: err}
		}
		log.Printf("pipeline step done run=%s name=%s duration=%s", runID, step.Name(), time.Since(start).Round(time.Millisecond))
	}

	log.Printf("pipeline complete run=%s round=%d", runID, round)
	return nil
}

// StepsFromConfig builds the configured command steps. Without explicit
// configuration the steps re-invoke this binary's refresh, write and send
// subcommands.
func StepsFromConfig(cfg config.Config, self string) []Step {
	configured := cfg.PipelineSteps
	if len(configured) == 0 {
		configured = DefaultSteps(self)
	}
	steps := make([]Step, 0, len(configured))
	for _, sc := range configured {
		name := sc.Name
		if name == "" {
			name = sc.Command[0]
		}
		steps = append(steps, CommandStep{StepName: name, Command: sc.Command, Dir: sc.Dir})
	}
	return steps
}

func DefaultSteps(self string) []config.StepConfig {
	return []config.StepConfig{
		{Name: "refresh", Command: []string{self, "refresh"}},
		{Name: "write", Command: []string{self, "write"}},
		{Name: "send", Command: []string{self, "send"}},
	}
}
