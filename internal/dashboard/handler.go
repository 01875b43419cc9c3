package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/famtasks/internal/engine"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/status"
)

// MessageTypeStats carries task counts of the local cache
const MessageTypeStats MessageType = "stats"

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID    string `json:"task_id"`
	Action    string `json:"action"` // upserted, removed
	Status    string `json:"status,omitempty"`
	Title     string `json:"title,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Assignee  string `json:"assignee,omitempty"`
	Private   bool   `json:"private,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// QueueUpdateData contains queue size information
type QueueUpdateData struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// CycleData summarizes a finished sync cycle
type CycleData struct {
	Seq        int           `json:"seq"`
	Forced     bool          `json:"forced"`
	Drained    int           `json:"drained"`
	Deferred   int           `json:"deferred"`
	Failed     int           `json:"failed"`
	Dropped    int           `json:"dropped"`
	Downloaded int           `json:"downloaded"`
	Removed    int           `json:"removed"`
	FullSync   bool          `json:"full_sync"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// StatsData contains task statistics
type StatsData struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	Completed int            `json:"completed"`
}

// Handler turns engine events and status changes into dashboard messages.
// It implements engine.EventSink.
type Handler struct {
	server *Server
	logger *log.Logger

	mu     sync.Mutex
	tasks  map[string]model.Task
	status status.Status
	ready  bool
}

var _ engine.EventSink = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// It installs itself as the server's welcome source.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	h := &Handler{
		server: server,
		logger: logger,
		tasks:  make(map[string]model.Task),
	}
	server.SetWelcome(h.welcome)
	return h
}

// Attach subscribes the handler to pub. Every status change is broadcast
// as a sync_status message. The returned function detaches it.
func (h *Handler) Attach(pub *status.Publisher) func() {
	return pub.Subscribe(h.OnStatus)
}

// OnStatus records and broadcasts a status snapshot.
func (h *Handler) OnStatus(st status.Status) {
	h.mu.Lock()
	h.status = st
	h.ready = true
	h.mu.Unlock()
	h.send(MessageTypeSyncStatus, st)
}

// OnTaskUpserted handles a task written to the cache.
func (h *Handler) OnTaskUpserted(task model.Task) {
	h.mu.Lock()
	h.tasks[task.ID] = task
	h.mu.Unlock()

	h.send(MessageTypeTaskUpdate, TaskUpdateData{
		TaskID:    task.ID,
		Action:    "upserted",
		Status:    string(task.Status),
		Title:     task.Title,
		Priority:  task.Priority,
		Assignee:  task.UserID,
		Private:   task.Private,
		Completed: task.Completed,
	})
	h.broadcastStats()
}

// OnTaskRemoved handles a task removed from the cache.
func (h *Handler) OnTaskRemoved(id string) {
	h.mu.Lock()
	delete(h.tasks, id)
	h.mu.Unlock()

	h.send(MessageTypeTaskUpdate, TaskUpdateData{TaskID: id, Action: "removed"})
	h.broadcastStats()
}

// OnQueueChanged handles a change of the pending or failed counts.
func (h *Handler) OnQueueChanged(pending, failed int) {
	h.send(MessageTypeQueueUpdate, QueueUpdateData{Pending: pending, Failed: failed})
}

// OnCycleComplete handles a finished sync cycle.
func (h *Handler) OnCycleComplete(rep engine.Report) {
	data := CycleData{
		Seq:        rep.Seq,
		Forced:     rep.Forced,
		Drained:    rep.Drained,
		Deferred:   rep.Deferred,
		Failed:     rep.Failed,
		Dropped:    rep.Dropped,
		Downloaded: rep.Downloaded,
		Removed:    rep.Removed,
		FullSync:   rep.FullSync,
		Duration:   rep.Duration(),
	}
	if rep.Error != "" {
		data.Error = rep.Error
		h.logger.Printf("Cycle %d failed: %s", rep.Seq, rep.Error)
	}
	h.send(MessageTypeCycle, data)
}

// UpdateStats replaces the tracked task set, typically with the cache
// contents at startup, and broadcasts the resulting counts.
func (h *Handler) UpdateStats(tasks []model.Task) {
	h.mu.Lock()
	h.tasks = make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		h.tasks[t.ID] = t
	}
	h.mu.Unlock()
	h.broadcastStats()
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statsLocked()
}

func (h *Handler) statsLocked() StatsData {
	stats := StatsData{Total: len(h.tasks), ByStatus: make(map[string]int)}
	for _, t := range h.tasks {
		stats.ByStatus[string(t.Status)]++
		if t.Completed {
			stats.Completed++
		}
	}
	return stats
}

func (h *Handler) broadcastStats() {
	h.send(MessageTypeStats, h.GetStats())
}

func (h *Handler) welcome() (Message, bool) {
	h.mu.Lock()
	st, ready := h.status, h.ready
	h.mu.Unlock()
	if !ready {
		return Message{}, false
	}
	msg, err := newMessage(MessageTypeSyncStatus, st)
	if err != nil {
		return Message{}, false
	}
	return msg, true
}

func (h *Handler) send(typ MessageType, v any) {
	msg, err := newMessage(typ, v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(msg)
}

func newMessage(typ MessageType, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: data}, nil
}
