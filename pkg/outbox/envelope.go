package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event: a service binary or a human
// reviewer acting through the API.
type ActorRef struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
