package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/clientdata"
	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/reliability"
	"github.com/aristath/sharpescan/internal/scheduler"
)

// Job schedules (cron with seconds).
const (
	scheduleClientDataCleanup = "0 0 3 * * *"
	scheduleCheckDatabases    = "0 15 * * * *"
	scheduleDailyMaintenance  = "0 30 3 * * *"
	scheduleWeeklyMaintenance = "0 0 4 * * 0"
	scheduleExportRotation    = "0 45 3 * * *"

	priceSyncTimeout = 30 * time.Minute
)

// RegisterJobs creates the background jobs and adds them to a new scheduler
// on container. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	instances := &JobInstances{}
	dbs := container.Databases()

	// Price sync for the default universe
	instances.PriceSync = scheduler.NewPriceSyncJob(container.PriceLoader, config.Dow30, priceSyncTimeout, log)
	if err := sched.AddJob(cfg.PriceSyncSchedule, instances.PriceSync); err != nil {
		return nil, err
	}

	// Expired API cache rows
	instances.ClientDataCleanup = clientdata.NewCleanupJob(container.ClientDataRepo, log)
	if err := sched.AddJob(scheduleClientDataCleanup, instances.ClientDataCleanup); err != nil {
		return nil, err
	}

	// Database health and upkeep
	instances.CheckDatabases = scheduler.NewCheckDatabasesJob(dbs, log)
	if err := sched.AddJob(scheduleCheckDatabases, instances.CheckDatabases); err != nil {
		return nil, err
	}
	instances.DailyMaintenance = reliability.NewDailyMaintenanceJob(dbs, cfg.DataDir, log)
	if err := sched.AddJob(scheduleDailyMaintenance, instances.DailyMaintenance); err != nil {
		return nil, err
	}
	instances.WeeklyMaintenance = reliability.NewWeeklyMaintenanceJob(dbs, log)
	if err := sched.AddJob(scheduleWeeklyMaintenance, instances.WeeklyMaintenance); err != nil {
		return nil, err
	}

	// Export retention
	if container.Exporter != nil && cfg.Export.RetentionDays > 0 {
		instances.ExportRotation = reliability.NewExportRotationJob(container.Exporter, cfg.Export.RetentionDays, log)
		if err := sched.AddJob(scheduleExportRotation, instances.ExportRotation); err != nil {
			return nil, err
		}
	}

	container.Scheduler = sched
	log.Info().Int("jobs", sched.JobCount()).Msg("Jobs registered")
	return instances, nil
}
