package gateway

// EventType discriminates the wire events the gateway speaks.
type EventType string

// Inbound events.
const (
	EvMessage       EventType = "message"
	EvCommand       EventType = "command"
	EvSummon        EventType = "summon"
	EvDismiss       EventType = "dismiss"
	EvSessionCreate EventType = "session:create"
	EvSessionEnd    EventType = "session:end"
	EvDisconnect    EventType = "disconnect"
)

// Outbound events. EvMessage is emitted on both directions.
const (
	EvTyping          EventType = "typing"
	EvTypingStop      EventType = "typing:stop"
	EvError           EventType = "error"
	EvSummonArrived   EventType = "summon:arrived"
	EvSummonDismissed EventType = "summon:dismissed"
	EvStreamChunk     EventType = "stream:chunk"
	EvStreamEnd       EventType = "stream:end"
)

// Event is one unit of gateway traffic in either direction. Fields are
// populated as relevant to the type; unused fields stay zero.
type Event struct {
	Type       EventType `json:"type"`
	Scope      string    `json:"scope,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Agent      string    `json:"agent,omitempty"`      // agent kind
	AgentName  string    `json:"agent_name,omitempty"` // display name
	Text       string    `json:"text,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds
}

// Transport is the duplex pub/sub channel the gateway publishes through.
// Delivery is best-effort; implementations log and drop on failure.
type Transport interface {
	// Broadcast delivers ev to every member of the scope's room.
	Broadcast(scope string, ev Event)

	// SendTo delivers ev to a single actor.
	SendTo(actor string, ev Event)
}
