package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/clientdata"
	"github.com/aristath/sharpescan/internal/clients/alphavantage"
	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/evaluation/workers"
	"github.com/aristath/sharpescan/internal/events"
	"github.com/aristath/sharpescan/internal/metrics"
	"github.com/aristath/sharpescan/internal/modules/historical"
	"github.com/aristath/sharpescan/internal/modules/runs"
	"github.com/aristath/sharpescan/internal/modules/simulation"
	"github.com/aristath/sharpescan/internal/reliability"
)

// InitializeServices creates clients, repositories and services on top of
// the databases in container.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.Metrics = metrics.NewRegistry()
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())
	container.RunRepo = runs.NewRepository(container.ResultsDB.Conn(), log)

	// The loader chain tolerates a nil client, but not a typed nil pointer.
	var priceClient historical.PriceClient
	if cfg.AlphaVantage.APIKey != "" {
		container.AlphaVantage = alphavantage.NewClient(cfg.AlphaVantage.APIKey, log,
			alphavantage.WithDailyLimit(cfg.AlphaVantage.DailyLimit),
			alphavantage.WithPerMinute(cfg.AlphaVantage.PerMinute),
			alphavantage.WithRecorder(container.Metrics),
		)
		priceClient = container.AlphaVantage
	} else {
		log.Warn().Msg("ALPHAVANTAGE_API_KEY not set; prices come from CSV files and local history only")
	}
	container.PriceLoader = historical.NewLoader(priceClient, container.ClientDataRepo, container.HistoryDB, log)

	container.WorkerPool = workers.NewWorkerPool(cfg.Workers)
	container.Engine = simulation.NewEngine(container.WorkerPool, log)
	container.Engine.SetRecorder(container.Metrics)

	container.RunService = runs.NewService(
		container.RunRepo,
		container.PriceLoader,
		container.Engine,
		cfg.ResultsDir(),
		cfg.DataDir,
		log,
	)
	container.RunService.SetEvents(container.EventManager)
	container.RunService.SetMetrics(container.Metrics)

	if cfg.Export.Enabled() {
		store, err := reliability.NewS3Client(ctx, cfg.Export, log)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		container.Exporter = reliability.NewResultsExporter(store, cfg.Export.Prefix, log)
		container.RunService.SetExporter(container.Exporter)
		log.Info().Str("bucket", cfg.Export.Bucket).Msg("Result export enabled")
	}

	log.Info().Int("workers", container.WorkerPool.Workers()).Msg("Services initialized")
	return nil
}
