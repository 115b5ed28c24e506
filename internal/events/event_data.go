package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	Name         string `json:"name"`
	Tickers      int    `json:"tickers"`
	Combinations int    `json:"combinations"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// RunProgressData contains data for RunProgress events
type RunProgressData struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// EventType returns the event type for RunProgressData
func (d *RunProgressData) EventType() EventType {
	return RunProgress
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	BestSharpe     float64  `json:"best_sharpe"`
	BestLine       int      `json:"best_line"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	OOSSharpe      *float64 `json:"oos_sharpe,omitempty"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}
