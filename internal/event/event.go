package event

import "encoding/json"

// Event names pushed to connected clients
const (
	EventNewMessage       = "new_message"
	EventRequestResponse  = "request_response"
	EventClaimAlert       = "claim_alert"
	EventConversationGone = "conversation_gone"
)

// WsEvent is the envelope delivered over a client's websocket
type WsEvent struct {
	Event          string          `json:"event"`
	ConversationID string          `json:"conversationId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// New builds an event envelope, marshalling payload. A payload that fails to
// marshal yields an envelope with no payload rather than no event.
func New(name, conversationID string, payload interface{}) WsEvent {
	ev := WsEvent{Event: name, ConversationID: conversationID}
	if payload != nil {
		if encoded, err := json.Marshal(payload); err == nil {
			ev.Payload = encoded
		}
	}
	return ev
}
