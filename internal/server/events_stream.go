package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/sharpescan/internal/events"
	"github.com/aristath/sharpescan/internal/modules/runs"
)

// snapshotMessage is the first message on every run stream.
type snapshotMessage struct {
	Type string    `json:"type"`
	Run  *runs.Run `json:"run"`
}

// RunStreamHandler streams the events of one run over a websocket.
type RunStreamHandler struct {
	bus  *events.Bus
	repo *runs.Repository
	log  zerolog.Logger
}

// NewRunStreamHandler creates a run stream handler.
func NewRunStreamHandler(bus *events.Bus, repo *runs.Repository, log zerolog.Logger) *RunStreamHandler {
	return &RunStreamHandler{
		bus:  bus,
		repo: repo,
		log:  log.With().Str("component", "run_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/runs/{id}/stream. The client first receives a
// snapshot of the run, then its events until the run completes or fails.
func (h *RunStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.repo.Get(id)
	if err != nil {
		if runs.IsNotFound(err) {
			writeError(w, h.log, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load run")
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	sub := h.bus.Subscribe(id)
	defer h.bus.Unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Str("run_id", id).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Reads are discarded; ctx ends when the client goes away.
	ctx := conn.CloseRead(r.Context())

	h.log.Debug().Str("run_id", id).Msg("Client connected to run stream")

	if err := wsjson.Write(ctx, conn, snapshotMessage{Type: "snapshot", Run: run}); err != nil {
		h.log.Debug().Err(err).Str("run_id", id).Msg("Failed to send snapshot")
		return
	}
	if run.Status == runs.StatusCompleted || run.Status == runs.StatusFailed {
		conn.Close(websocket.StatusNormalClosure, "run finished")
		return
	}

	h.forward(ctx, conn, sub, id)
}

func (h *RunStreamHandler) forward(ctx context.Context, conn *websocket.Conn, sub <-chan events.Event, id string) {
	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("run_id", id).Msg("Client disconnected from run stream")
			return
		case event, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Str("run_id", id).Msg("Failed to write event")
				return
			}
			if event.Type.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "run finished")
				return
			}
		}
	}
}
