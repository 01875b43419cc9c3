package engine

import "github.com/mschirtzinger/famtasks/internal/model"

// EventSink observes cache and queue changes made by the engine. Calls
// may come from any goroutine.
type EventSink interface {
	OnTaskUpserted(task model.Task)
	OnTaskRemoved(id string)
	OnQueueChanged(pending, failed int)
	OnCycleComplete(r Report)
}

func (e *Engine) emitUpsert(t model.Task) {
	if e.config.Events != nil {
		e.config.Events.OnTaskUpserted(t)
	}
}

func (e *Engine) emitRemove(id string) {
	if e.config.Events != nil {
		e.config.Events.OnTaskRemoved(id)
	}
}
