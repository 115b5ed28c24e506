package server

import (
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/sharpescan/internal/database"
)

// QuotaReporter exposes the market data API budget.
type QuotaReporter interface {
	GetRemainingRequests() int
	BreakerState() string
}

// SystemStatusResponse is the body of GET /api/system.
type SystemStatusResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Goroutines    int              `json:"goroutines"`
	CPUPercent    float64          `json:"cpu_percent"`
	MemPercent    float64          `json:"mem_percent"`
	DiskFreeGB    float64          `json:"disk_free_gb"`
	Databases     []database.Stats `json:"databases"`
	Quota         *QuotaStatus     `json:"quota,omitempty"`
}

// QuotaStatus reports the market data API budget.
type QuotaStatus struct {
	RemainingRequests int    `json:"remaining_requests"`
	Breaker           string `json:"breaker"`
}

// SystemHandlers serves host and database status.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   map[string]*database.DB
	quota       QuotaReporter
}

// NewSystemHandlers creates system handlers. quota may be nil.
func NewSystemHandlers(dataDir string, dbs map[string]*database.DB, quota QuotaReporter, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   dbs,
		quota:       quota,
	}
}

// HandleSystem handles GET /api/system.
func (h *SystemHandlers) HandleSystem(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemPercent:    memPercent,
		DiskFreeGB:    h.diskFreeGB(),
		Databases:     h.databaseStats(),
	}
	if h.quota != nil {
		resp.Quota = &QuotaStatus{
			RemainingRequests: h.quota.GetRemainingRequests(),
			Breaker:           h.quota.BreakerState(),
		}
	}

	writeJSON(w, h.log, http.StatusOK, resp)
}

func (h *SystemHandlers) databaseStats() []database.Stats {
	names := make([]string, 0, len(h.databases))
	for name, db := range h.databases {
		if db != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	stats := make([]database.Stats, 0, len(names))
	for _, name := range names {
		s, err := h.databases[name].GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}
		stats = append(stats, *s)
	}
	return stats
}

func (h *SystemHandlers) diskFreeGB() float64 {
	if h.dataDir == "" {
		return 0
	}
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		return 0
	}
	return float64(usage.Free) / 1024 / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the call short.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
