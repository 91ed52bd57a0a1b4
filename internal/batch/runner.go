package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jpazvd/wb-api-repo/internal/output"
	"github.com/jpazvd/wb-api-repo/pkg/logging"
	"github.com/jpazvd/wb-api-repo/pkg/wb"
)

// Runner executes batch jobs against a service, one at a time. A failing
// job skips its output but does not stop the remaining jobs.
type Runner struct {
	service *wb.Service
	logger  zerolog.Logger
}

// NewRunner creates a batch runner.
func NewRunner(service *wb.Service) *Runner {
	return &Runner{
		service: service,
		logger:  logging.NewLogger("batch"),
	}
}

// Run executes every job in the config. The returned error aggregates all
// per-job failures; nil means every job wrote its output.
func (r *Runner) Run(ctx context.Context, cfg *Config) error {
	var failed int
	for _, job := range cfg.Jobs {
		if err := r.runJob(ctx, job); err != nil {
			failed++
			r.logger.Error().
				Err(err).
				Str("job", job.Name).
				Msg("Job failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(cfg.Jobs))
	}
	return nil
}

func (r *Runner) runJob(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	r.logger.Info().
		Str("job", job.Name).
		Strs("indicators", job.Indicators).
		Str("out", job.Out).
		Msg("Running job")

	table, err := r.service.DataTable(ctx, job.Filter(), !job.Long)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(job.Out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := output.Write(job.Out, table); err != nil {
		return err
	}

	r.logger.Info().
		Str("job", job.Name).
		Int("rows", len(table.Rows)).
		Int("cols", len(table.Columns)).
		Msg("Wrote output")
	return nil
}
