package commands

import (
	"errors"
	"time"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/engine"
	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/telemetry"
)

// compileProject runs the compile pipeline with metrics recorded.
func compileProject(
	store *config.Store,
	logger *telemetry.Logger,
	metrics *telemetry.Metrics,
) (*engine.Compiled, error) {
	start := time.Now()
	compiled, err := engine.Compile(store, projectName, logger.Zerolog())
	metrics.RecordCompile(time.Since(start), err)
	if err != nil {
		recordErrorKind(metrics, err)
		return nil, err
	}
	return compiled, nil
}

// buildPlan runs the compile and plan pipeline shared by plan and run.
func buildPlan(
	store *config.Store,
	section string,
	logger *telemetry.Logger,
	metrics *telemetry.Metrics,
	opts engine.PlanOptions,
) (*engine.Plan, error) {
	compiled, err := compileProject(store, logger, metrics)
	if err != nil {
		return nil, err
	}

	planner := engine.NewPlanner(store, section, logger.Zerolog())
	start := time.Now()
	plan, err := planner.Plan(compiled, opts)
	if err != nil {
		metrics.RecordPlan(time.Since(start), 0, err)
		recordErrorKind(metrics, err)
		return nil, err
	}
	metrics.RecordPlan(time.Since(start), len(plan.Nodes), nil)
	return plan, nil
}

func recordErrorKind(metrics *telemetry.Metrics, err error) {
	var e *errdefs.Error
	if errors.As(err, &e) {
		metrics.RecordError(string(e.Kind))
		return
	}
	metrics.RecordError("other")
}
