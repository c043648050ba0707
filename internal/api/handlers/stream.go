package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wonny/ashare-rotation/internal/audit"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Event types sent over /ws/runs/{id}
const (
	EventPeriod = "period"
	EventDone   = "done"
)

const (
	writeWait      = 10 * time.Second
	subscriberSize = 64
)

// Event is one progress message of a run
type Event struct {
	Type    string                  `json:"type"`
	RunID   uuid.UUID               `json:"run_id"`
	Period  *contracts.PeriodRecord `json:"period,omitempty"`
	Status  audit.RunStatus         `json:"status,omitempty"`
	Summary *contracts.Summary      `json:"summary,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// Hub fans run events out to websocket subscribers.
// A run is tracked from Open until Close; late subscribers replay its history.
type Hub struct {
	mu     sync.Mutex
	topics map[uuid.UUID]*topic
}

type topic struct {
	history []Event
	subs    map[chan Event]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{topics: make(map[uuid.UUID]*topic)}
}

// Open starts tracking a run
func (h *Hub) Open(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[id]; !ok {
		h.topics[id] = &topic{subs: make(map[chan Event]struct{})}
	}
}

// Publish records ev and forwards it; a subscriber that cannot keep up is dropped
func (h *Hub) Publish(id uuid.UUID, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[id]
	if !ok {
		return
	}
	t.history = append(t.history, ev)
	for ch := range t.subs {
		select {
		case ch <- ev:
		default:
			delete(t.subs, ch)
			close(ch)
		}
	}
}

// Close ends the run's stream and forgets its history
func (h *Hub) Close(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[id]
	if !ok {
		return
	}
	for ch := range t.subs {
		close(ch)
	}
	delete(h.topics, id)
}

// Subscribe returns the events so far and a channel of later ones.
// ok is false when the run is not live.
func (h *Hub) Subscribe(id uuid.UUID) (replay []Event, events <-chan Event, cancel func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[id]
	if !ok {
		return nil, nil, func() {}, false
	}

	ch := make(chan Event, subscriberSize)
	t.subs[ch] = struct{}{}
	replay = append([]Event(nil), t.history...)
	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if t, ok := h.topics[id]; ok {
			if _, live := t.subs[ch]; live {
				delete(t.subs, ch)
				close(ch)
			}
		}
	}
	return replay, ch, cancel, true
}

// StreamHandler serves run progress over websocket
type StreamHandler struct {
	hub      *Hub
	runs     audit.RunStore
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(hub *Hub, runs audit.RunStore, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:  hub,
		runs: runs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// ServeRun streams period records, then a done event
// GET /ws/runs/{id}
func (h *StreamHandler) ServeRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	// 구독을 먼저 걸고, 종료된 실행이면 저장소에서 재생
	replay, events, cancel, live := h.hub.Subscribe(id)
	defer cancel()

	var stored *audit.Run
	if !live {
		run, err := h.runs.GetRun(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		stored = run
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// 클라이언트 종료 감지
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev Event) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		return conn.WriteJSON(ev) == nil
	}

	if stored != nil {
		for _, ev := range StoredEvents(stored) {
			if !send(ev) {
				return
			}
		}
	} else {
		for _, ev := range replay {
			if !send(ev) {
				return
			}
		}
		for done := false; !done; {
			select {
			case ev, open := <-events:
				if !open {
					done = true
					break
				}
				if !send(ev) {
					return
				}
			case <-closed:
				return
			}
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
}

// StoredEvents rebuilds the event stream of a persisted run
func StoredEvents(run *audit.Run) []Event {
	events := make([]Event, 0, len(run.Periods)+1)
	for i := range run.Periods {
		events = append(events, Event{Type: EventPeriod, RunID: run.ID, Period: &run.Periods[i]})
	}
	if run.Status.Done() {
		summary := run.Summary
		events = append(events, Event{Type: EventDone, RunID: run.ID, Status: run.Status, Summary: &summary, Error: run.Error})
	}
	return events
}
