package flow

import (
	"encoding/json"
	"net/http"
)

// Event types.
const (
	EventStarted   = "started"
	EventCompleted = "completed"
)

// FormEvent is the payload published when a step is accepted.
type FormEvent struct {
	Type      string `json:"type"`          // "started", "completed"
	SessionID string `json:"session_id"`    // flow session id
	Age       string `json:"age,omitempty"` // completed events only
	Ts        int64  `json:"ts"`            // unix timestamp
}

// publish sends ev if events are enabled. Failures are logged only; the
// user's request has already succeeded.
func (c *Controller) publish(r *http.Request, ev FormEvent) {
	if c.events == nil {
		return
	}
	ev.Ts = c.now().Unix()

	data, err := json.Marshal(ev)
	if err != nil {
		c.logFor(r).WithError(err).Warn("marshal form event")
		return
	}

	switch ev.Type {
	case EventStarted:
		err = c.events.PublishFormStarted(data)
	case EventCompleted:
		err = c.events.PublishFormCompleted(data)
	}
	if err != nil {
		c.logFor(r).WithError(err).WithField("event", ev.Type).Warn("publish form event")
	}
}
