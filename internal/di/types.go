// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/sharpescan/internal/clientdata"
	"github.com/aristath/sharpescan/internal/clients/alphavantage"
	"github.com/aristath/sharpescan/internal/database"
	"github.com/aristath/sharpescan/internal/evaluation/workers"
	"github.com/aristath/sharpescan/internal/events"
	"github.com/aristath/sharpescan/internal/metrics"
	"github.com/aristath/sharpescan/internal/modules/historical"
	"github.com/aristath/sharpescan/internal/modules/runs"
	"github.com/aristath/sharpescan/internal/modules/simulation"
	"github.com/aristath/sharpescan/internal/reliability"
	"github.com/aristath/sharpescan/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	ResultsDB    *database.DB          // Runs and per-combination results
	ClientDataDB *database.DB          // Alpha Vantage response cache
	HistoryDB    *historical.HistoryDB // Daily closes, written through by the loader

	// Clients
	AlphaVantage *alphavantage.Client // nil without an API key

	// Repositories
	ClientDataRepo *clientdata.Repository
	RunRepo        *runs.Repository

	// Services
	PriceLoader  *historical.Loader
	WorkerPool   *workers.WorkerPool
	Engine       *simulation.Engine
	RunService   *runs.Service
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Registry
	Exporter     *reliability.ResultsExporter // nil when export is disabled
	Scheduler    *scheduler.Scheduler
}

// Databases returns the managed SQLite databases keyed by name.
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.ResultsDB != nil {
		dbs[database.NameResults] = c.ResultsDB
	}
	if c.ClientDataDB != nil {
		dbs[database.NameClientData] = c.ClientDataDB
	}
	return dbs
}

// Close closes every database the container opened.
func (c *Container) Close() {
	if c.ResultsDB != nil {
		c.ResultsDB.Close()
	}
	if c.ClientDataDB != nil {
		c.ClientDataDB.Close()
	}
	if c.HistoryDB != nil {
		c.HistoryDB.Close()
	}
}

// JobInstances holds the scheduled jobs for manual triggering.
type JobInstances struct {
	PriceSync         scheduler.Job
	ClientDataCleanup scheduler.Job
	CheckDatabases    scheduler.Job
	DailyMaintenance  scheduler.Job
	WeeklyMaintenance scheduler.Job
	ExportRotation    scheduler.Job // nil when export is disabled
}
