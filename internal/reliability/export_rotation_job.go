package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExportRotationJob deletes exported archives past their retention.
type ExportRotationJob struct {
	exporter      *ResultsExporter
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewExportRotationJob creates a rotation job for exporter.
func NewExportRotationJob(exporter *ResultsExporter, retentionDays int, log zerolog.Logger) *ExportRotationJob {
	return &ExportRotationJob{
		exporter:      exporter,
		retentionDays: retentionDays,
		timeout:       5 * time.Minute,
		log:           log.With().Str("job", "export_rotation").Logger(),
	}
}

// Run executes the rotation.
func (j *ExportRotationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.exporter.RotateOldExports(ctx, j.retentionDays)
	if err != nil {
		return err
	}
	j.log.Info().Int("deleted", deleted).Int("retention_days", j.retentionDays).Msg("Export rotation completed")
	return nil
}

// Name returns the job name
func (j *ExportRotationJob) Name() string {
	return "export_rotation"
}
