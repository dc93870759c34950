package types

// CompletionMessage is one entry of the history sent to the completion
// endpoint.
type CompletionMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionChunk is one decoded `data:` record of a completion stream. The
// generic delta lives under choices; some agents add their own payload.
type CompletionChunk struct {
	Choices      []CompletionChoice   `json:"choices,omitempty"`
	Resource     *ResourcePayload     `json:"resource,omitempty"`
	Notification *NotificationPayload `json:"notification,omitempty"`
}

type CompletionChoice struct {
	Delta        CompletionDelta `json:"delta"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type CompletionDelta struct {
	Content string `json:"content,omitempty"`
}

type ResourcePayload struct {
	Content string `json:"content,omitempty"`
}

type NotificationPayload struct {
	Message string `json:"message,omitempty"`
}

const FinishReasonStop = "stop"

// DeltaContent returns the generic choices[0].delta.content field.
func (c CompletionChunk) DeltaContent() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Stopped reports whether choices[0].finish_reason is "stop".
func (c CompletionChunk) Stopped() bool {
	if len(c.Choices) == 0 {
		return false
	}
	return c.Choices[0].FinishReason == FinishReasonStop
}
