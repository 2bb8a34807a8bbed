package line

// WebhookRequest is the body POSTed by the platform to the webhook endpoint.
type WebhookRequest struct {
	Events []Event `json:"events"`
}

// Event is one notification from the platform. Only message events carrying
// text are processed; everything else is skipped.
type Event struct {
	Type           string        `json:"type"`
	Message        *EventMessage `json:"message,omitempty"`
	ReplyToken     string        `json:"replyToken,omitempty"`
	WebhookEventID string        `json:"webhookEventId,omitempty"`
	Source         EventSource   `json:"source"`
}

// EventMessage is the message carried by a message event.
type EventMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// EventSource identifies where an event originated.
type EventSource struct {
	Type    string `json:"type,omitempty"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}
