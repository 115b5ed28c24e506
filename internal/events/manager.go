package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// EmitTyped publishes data for runID and logs it. Progress events are logged
// at debug level.
func (m *Manager) EmitTyped(runID string, data EventData) {
	event := Event{
		Type:      data.EventType(),
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
	m.bus.Publish(event)

	logEvent := m.log.Info()
	if event.Type == RunProgress {
		logEvent = m.log.Debug()
	}
	logEvent.
		Str("event_type", string(event.Type)).
		Str("run_id", runID).
		Interface("data", data).
		Msg("Event emitted")
}

// EmitError emits a RunFailed event for runID.
func (m *Manager) EmitError(runID string, err error) {
	m.EmitTyped(runID, &RunFailedData{Error: err.Error()})
}
