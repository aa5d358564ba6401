package notification

type NotificationResponse struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	PersonID  *string                `json:"user_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt string                 `json:"created_at"`
}

// SSEEvent is what the stream handler writes to a client.
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}
