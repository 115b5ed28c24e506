package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/sharpescan/internal/modules/optimization"
)

// DateLayout is the calendar date format used in profiles and CSV files.
const DateLayout = "2006-01-02"

// Dow30 is the default universe.
var Dow30 = []string{
	"AAPL", "AMGN", "AMZN", "AXP", "BA", "CAT", "CRM", "CSCO", "CVX", "DIS",
	"GS", "HD", "HON", "IBM", "JNJ", "JPM", "KO", "MCD", "MMM", "MRK",
	"MSFT", "NKE", "NVDA", "PG", "SHW", "TRV", "UNH", "V", "VZ", "WMT",
}

// Window is an inclusive calendar date range with an optional wide CSV file
// to read prices from before falling back to the API.
type Window struct {
	Start   string `yaml:"start" json:"start"`
	End     string `yaml:"end" json:"end"`
	CSVPath string `yaml:"csv_path,omitempty" json:"csv_path,omitempty"`
}

// Range parses the window bounds.
func (w Window) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", w.Start, err)
	}
	end, err := time.Parse(DateLayout, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", w.End, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s before start date %s", w.End, w.Start)
	}
	return start, end, nil
}

// Profile describes one combination study.
type Profile struct {
	Name                 string   `yaml:"name" json:"name"`
	Tickers              []string `yaml:"tickers" json:"tickers"`
	InSample             Window   `yaml:"in_sample" json:"in_sample"`
	OutOfSample          *Window  `yaml:"out_of_sample,omitempty" json:"out_of_sample,omitempty"`
	ComboSize            int      `yaml:"combo_size" json:"combo_size"`
	ComboLimit           int      `yaml:"combo_limit" json:"combo_limit"`
	MaxPct               float64  `yaml:"max_pct" json:"max_pct"`
	TrialsPerCombination int      `yaml:"trials_per_combination" json:"trials_per_combination"`
	Seed                 uint64   `yaml:"seed" json:"seed"`
	RiskFreeRate         float64  `yaml:"risk_free_rate" json:"risk_free_rate"`
}

// DefaultProfile is the Dow 30 study: every 25-stock subset, 20% cap,
// fitted on Aug-Dec 2024 and backtested on Q1 2025.
func DefaultProfile() Profile {
	return Profile{
		Name:    "dow30-25",
		Tickers: append([]string(nil), Dow30...),
		InSample: Window{
			Start:   "2024-08-01",
			End:     "2024-12-31",
			CSVPath: "dow30.csv",
		},
		OutOfSample: &Window{
			Start:   "2025-01-01",
			End:     "2025-03-31",
			CSVPath: "dow_jones_q1.csv",
		},
		ComboSize:            25,
		ComboLimit:           142506,
		MaxPct:               optimization.MaxConcentration,
		TrialsPerCombination: 1000,
		Seed:                 1,
	}
}

// LoadProfile reads a YAML profile. Fields missing from the file keep their
// DefaultProfile values.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes YAML over the defaults and validates the result.
func ParseProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// YAML encodes the profile.
func (p Profile) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}

// Validate checks the profile for internal consistency.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if len(p.Tickers) == 0 {
		return fmt.Errorf("profile %s: at least one ticker is required", p.Name)
	}
	seen := make(map[string]bool, len(p.Tickers))
	for _, t := range p.Tickers {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("profile %s: empty ticker", p.Name)
		}
		if seen[t] {
			return fmt.Errorf("profile %s: duplicate ticker %s", p.Name, t)
		}
		seen[t] = true
	}
	if _, _, err := p.InSample.Range(); err != nil {
		return fmt.Errorf("profile %s in-sample window: %w", p.Name, err)
	}
	if p.OutOfSample != nil {
		if _, _, err := p.OutOfSample.Range(); err != nil {
			return fmt.Errorf("profile %s out-of-sample window: %w", p.Name, err)
		}
	}
	if p.ComboSize < 1 || p.ComboSize > len(p.Tickers) {
		return fmt.Errorf("profile %s: combo_size %d outside [1, %d]", p.Name, p.ComboSize, len(p.Tickers))
	}
	if p.ComboLimit < 0 {
		return fmt.Errorf("profile %s: combo_limit must be >= 0", p.Name)
	}
	if p.TrialsPerCombination < 1 {
		return fmt.Errorf("profile %s: trials_per_combination must be >= 1", p.Name)
	}
	if err := optimization.CheckCap(p.ComboSize, p.MaxPct); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return nil
}

// ValidateDataPaths requires every CSV path to be relative and to stay inside
// the data directory it is resolved against. Profiles submitted over HTTP must
// pass it.
func (p Profile) ValidateDataPaths() error {
	windows := map[string]*Window{"in_sample": &p.InSample, "out_of_sample": p.OutOfSample}
	for _, name := range []string{"in_sample", "out_of_sample"} {
		w := windows[name]
		if w == nil || w.CSVPath == "" {
			continue
		}
		if !filepath.IsLocal(w.CSVPath) {
			return fmt.Errorf("profile %s: %s.csv_path %q must be a relative path inside the data directory", p.Name, name, w.CSVPath)
		}
	}
	return nil
}
