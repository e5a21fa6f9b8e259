// Package pipeline runs the archive stages in order for each site and
// records every stage run in the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pevans/waybackfed/ledger"
	"go.uber.org/zap"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageDiscover Stage = "discover"
	StageExtract  Stage = "extract"
	StageFetch    Stage = "fetch"
)

// AllStages lists the stages in execution order.
var AllStages = []Stage{StageDiscover, StageExtract, StageFetch}

// Custom errors for pipeline configuration
var (
	ErrUnknownStage = errors.New("unknown stage")
)

// ParseStages converts stage names, returning AllStages when none are given.
// The result is always in execution order.
func ParseStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return AllStages, nil
	}

	want := map[Stage]bool{}
	for _, name := range names {
		stage := Stage(name)
		switch stage {
		case StageDiscover, StageExtract, StageFetch:
			want[stage] = true
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
		}
	}

	var stages []Stage
	for _, stage := range AllStages {
		if want[stage] {
			stages = append(stages, stage)
		}
	}
	return stages, nil
}

// StageRunner runs one stage for one site.
type StageRunner interface {
	Run(ctx context.Context, site string) (ledger.Counts, error)
}

// Recorder stores the lifecycle of stage runs.
type Recorder interface {
	StartRun(site, stage string) (*ledger.Run, error)
	FinishRun(runID uuid.UUID, counts ledger.Counts, runErr error) error
}

// Pipeline runs registered stages over a list of sites.
type Pipeline struct {
	runners  map[Stage]StageRunner
	recorder Recorder
	logger   *zap.Logger
}

// New creates an empty pipeline.
func New(logger *zap.Logger) *Pipeline {
	return &Pipeline{
		runners: map[Stage]StageRunner{},
		logger:  logger,
	}
}

// Register sets the runner for stage.
func (p *Pipeline) Register(stage Stage, runner StageRunner) *Pipeline {
	p.runners[stage] = runner
	return p
}

// WithRecorder sets the ledger that records stage runs.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// Run executes stages in order for every site. A failing stage skips the
// remaining stages of its site; other sites still run. Cancellation stops
// the run after the current stage. The errors of all sites are joined.
func (p *Pipeline) Run(ctx context.Context, sites []string, stages []Stage) error {
	for _, stage := range stages {
		if _, ok := p.runners[stage]; !ok {
			return fmt.Errorf("%w: %s has no runner", ErrUnknownStage, stage)
		}
	}

	var errs []error
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		err := p.runSite(ctx, site, stages)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	return errors.Join(errs...)
}

func (p *Pipeline) runSite(ctx context.Context, site string, stages []Stage) error {
	log := p.logger.With(zap.String("site", site))

	for _, stage := range stages {
		log.Info("Starting stage", zap.String("stage", string(stage)))

		counts, err := p.runStage(ctx, site, stage)
		if err != nil {
			log.Error("Stage failed",
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			return fmt.Errorf("%s %s: %w", site, stage, err)
		}

		log.Info("Finished stage",
			zap.String("stage", string(stage)),
			zap.Int("processed", counts.Processed),
			zap.Int("succeeded", counts.Succeeded),
			zap.Int("empty", counts.Empty),
			zap.Int("failed", counts.Failed),
		)
	}

	return nil
}

func (p *Pipeline) runStage(ctx context.Context, site string, stage Stage) (ledger.Counts, error) {
	var run *ledger.Run
	if p.recorder != nil {
		var err error
		run, err = p.recorder.StartRun(site, string(stage))
		if err != nil {
			p.logger.Warn("Failed to record stage start", zap.String("site", site), zap.Error(err))
		}
	}

	counts, runErr := p.runners[stage].Run(ctx, site)

	if run != nil {
		if err := p.recorder.FinishRun(run.RunID, counts, runErr); err != nil {
			p.logger.Warn("Failed to record stage finish", zap.String("site", site), zap.Error(err))
		}
	}

	return counts, runErr
}
