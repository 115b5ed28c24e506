package runs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/events"
	"github.com/aristath/sharpescan/internal/modules/backtest"
	"github.com/aristath/sharpescan/internal/modules/combinations"
	"github.com/aristath/sharpescan/internal/modules/historical"
	"github.com/aristath/sharpescan/internal/modules/reporting"
	"github.com/aristath/sharpescan/internal/modules/simulation"
	"github.com/aristath/sharpescan/internal/progress"
)

// progressEvents is how many progress events a run publishes at most.
const progressEvents = 200

// Exporter uploads the files of a finished run.
type Exporter interface {
	Export(ctx context.Context, runID, name, dir string, files []string) (string, error)
}

// Metrics observes run lifecycles.
type Metrics interface {
	RunStarted()
	RunFinished(status string, elapsed time.Duration, bestSharpe float64)
}

// Service runs combination studies end to end.
type Service struct {
	repo       *Repository
	loader     backtest.PriceLoader
	engine     *simulation.Engine
	backtester *backtest.Backtester
	resultsDir string
	dataDir    string
	exporter   Exporter
	events     *events.Manager
	metrics    Metrics
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a run service. Relative CSV paths in profiles are
// resolved against dataDir; outputs go to resultsDir/<run id>.
func NewService(
	repo *Repository,
	loader backtest.PriceLoader,
	engine *simulation.Engine,
	resultsDir string,
	dataDir string,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		loader:     loader,
		engine:     engine,
		backtester: backtest.NewBacktester(loader, log),
		resultsDir: resultsDir,
		dataDir:    dataDir,
		log:        log.With().Str("service", "runs").Logger(),
		now:        time.Now,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetExporter enables uploading of run outputs.
func (s *Service) SetExporter(e Exporter) {
	s.exporter = e
}

// SetEvents enables run lifecycle events.
func (s *Service) SetEvents(m *events.Manager) {
	s.events = m
}

// SetMetrics attaches a metrics sink.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// Repository returns the run store.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Execute runs profile synchronously. cb, if set, receives search progress.
func (s *Service) Execute(ctx context.Context, profile config.Profile, cb progress.Callback) (*Outcome, error) {
	run, err := s.prepare(profile)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, run, profile, cb)
}

// Start launches profile in the background and returns the run ID at once.
// Progress is published as events.
func (s *Service) Start(profile config.Profile) (string, error) {
	run, err := s.prepare(profile)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, run.ID)
			s.mu.Unlock()
			cancel()
		}()

		if _, err := s.execute(ctx, run, profile, nil); err != nil {
			s.log.Error().Err(err).Str("run_id", run.ID).Msg("Background run failed")
		}
	}()

	return run.ID, nil
}

// Cancel stops a background run. It reports whether the run was active.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether a background run is in progress.
func (s *Service) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[id]
	return ok
}

// Shutdown cancels every background run and waits for them to finish.
func (s *Service) Shutdown() {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) prepare(profile config.Profile) (*Run, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameter, err)
	}

	run := &Run{
		ID:           uuid.New().String(),
		Name:         profile.Name,
		Status:       StatusPending,
		Profile:      profile,
		Tickers:      append([]string(nil), profile.Tickers...),
		StartedAt:    s.now().UTC(),
		Combinations: min(profile.ComboLimit, combinations.Count(len(profile.Tickers), profile.ComboSize)),
	}
	if err := s.repo.Create(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) execute(ctx context.Context, run *Run, profile config.Profile, cb progress.Callback) (*Outcome, error) {
	log := s.log.With().Str("run_id", run.ID).Str("name", run.Name).Logger()
	startTime := s.now()

	if s.metrics != nil {
		s.metrics.RunStarted()
	}
	s.emit(run.ID, &events.RunStartedData{
		Name:         run.Name,
		Tickers:      len(run.Tickers),
		Combinations: run.Combinations,
	})

	outcome, err := s.pipeline(ctx, run, profile, cb, log)
	finishedAt := s.now()
	if err != nil {
		if ferr := s.repo.Fail(run.ID, finishedAt.UTC(), err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record run failure")
		}
		if s.metrics != nil {
			s.metrics.RunFinished(string(StatusFailed), finishedAt.Sub(startTime), 0)
		}
		if s.events != nil {
			s.events.EmitError(run.ID, err)
		}
		log.Error().Err(err).Msg("Run failed")
		return nil, err
	}

	var oos *float64
	if outcome.Backtest != nil {
		v := outcome.Backtest.Metrics.Sharpe
		oos = &v
	}
	if err := s.repo.Complete(run.ID, finishedAt.UTC(), outcome.Best.BestSharpe, outcome.BestLine, oos); err != nil {
		return nil, err
	}
	run.Status = StatusCompleted
	run.FinishedAt = &finishedAt
	run.BestSharpe = &outcome.Best.BestSharpe
	run.BestLine = &outcome.BestLine
	run.OOSSharpe = oos

	if s.metrics != nil {
		s.metrics.RunFinished(string(StatusCompleted), finishedAt.Sub(startTime), outcome.Best.BestSharpe)
	}
	s.emit(run.ID, &events.RunCompletedData{
		BestSharpe:     outcome.Best.BestSharpe,
		BestLine:       outcome.BestLine,
		ElapsedSeconds: outcome.Elapsed.Seconds(),
		OOSSharpe:      oos,
	})

	log.Info().
		Float64("best_sharpe", outcome.Best.BestSharpe).
		Int("best_line", outcome.BestLine).
		Str("dir", outcome.Dir).
		Msg("Run completed")
	return outcome, nil
}

func (s *Service) pipeline(ctx context.Context, run *Run, profile config.Profile, cb progress.Callback, log zerolog.Logger) (*Outcome, error) {
	if err := s.repo.SetStatus(run.ID, StatusRunning); err != nil {
		return nil, err
	}
	run.Status = StatusRunning

	start, end, err := profile.InSample.Range()
	if err != nil {
		return nil, err
	}
	series, err := s.loader.LoadAll(ctx, profile.Tickers, start, end, s.resolvePath(profile.InSample.CSVPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load in-sample prices: %w", err)
	}
	aligned, err := historical.Align(series, profile.Tickers)
	if err != nil {
		return nil, err
	}
	m, err := aligned.ReturnsMatrix()
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("tickers", len(aligned.Tickers)).
		Int("days", aligned.Days()).
		Msg("In-sample prices aligned")

	params := simulation.Params{
		ComboSize:            profile.ComboSize,
		ComboLimit:           profile.ComboLimit,
		MaxPct:               profile.MaxPct,
		TrialsPerCombination: profile.TrialsPerCombination,
		Seed:                 profile.Seed,
		RiskFreeRate:         profile.RiskFreeRate,
		RNGFactory:           simulation.PCGFactory,
	}

	searchStart := s.now()
	results, err := s.engine.SimulateSomeCombinations(ctx, m, len(aligned.Tickers), params, s.progressCallback(run, cb))
	if err != nil {
		return nil, err
	}
	elapsed := s.now().Sub(searchStart)

	best, idx, err := simulation.BestResult(results)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{
		Run:      run,
		Results:  results,
		Best:     best,
		BestLine: idx + 1,
		Elapsed:  elapsed,
		Dir:      filepath.Join(s.resultsDir, run.ID),
	}

	if err := s.repo.SaveResults(run.ID, results); err != nil {
		return nil, err
	}

	outcome.PortfoliosPath = filepath.Join(outcome.Dir, reporting.PortfoliosFile)
	if err := reporting.WriteResultsCSV(outcome.PortfoliosPath, results, aligned.Tickers); err != nil {
		return nil, err
	}

	summary := reporting.Summary{
		Start:          start,
		End:            end,
		BestSharpe:     best.BestSharpe,
		BestLine:       outcome.BestLine,
		PortfoliosPath: outcome.PortfoliosPath,
		Elapsed:        elapsed,
	}

	if oos := profile.OutOfSample; oos != nil {
		btStart, btEnd, err := oos.Range()
		if err != nil {
			return nil, err
		}
		holdings, err := backtest.Holdings(best.Combination, best.BestWeights, aligned.Tickers)
		if err != nil {
			return nil, err
		}
		result, err := s.backtester.Run(ctx, holdings, btStart, btEnd, s.resolvePath(oos.CSVPath), profile.RiskFreeRate)
		if err != nil {
			return nil, fmt.Errorf("backtest failed: %w", err)
		}
		outcome.Backtest = result
		summary.Backtest = &reporting.BacktestSummary{Start: btStart, End: btEnd, Sharpe: result.Metrics.Sharpe}
	}

	outcome.Summary = summary
	outcome.SummaryPath = filepath.Join(outcome.Dir, reporting.SummaryFile)
	if err := reporting.WriteSummary(outcome.SummaryPath, summary); err != nil {
		return nil, err
	}

	if s.exporter != nil {
		key, err := s.exporter.Export(ctx, run.ID, run.Name, outcome.Dir,
			[]string{reporting.PortfoliosFile, reporting.SummaryFile})
		if err != nil {
			// The local outputs are complete; a failed upload does not fail the run.
			log.Warn().Err(err).Msg("Results export failed")
		} else {
			outcome.ExportKey = key
		}
	}

	return outcome, nil
}

// progressCallback forwards progress to cb and publishes throttled progress events.
func (s *Service) progressCallback(run *Run, cb progress.Callback) progress.Callback {
	step := max(run.Combinations/progressEvents, 1)
	publish := progress.Every(func(current, total int, message string) {
		s.emit(run.ID, &events.RunProgressData{Current: current, Total: total, Message: message})
	}, step)

	return func(current, total int, message string) {
		progress.Call(cb, current, total, message)
		if s.events != nil {
			publish(current, total, message)
		}
	}
}

func (s *Service) emit(runID string, data events.EventData) {
	if s.events != nil {
		s.events.EmitTyped(runID, data)
	}
}

func (s *Service) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.dataDir, path)
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
