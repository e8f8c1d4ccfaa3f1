package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action tags a run request or an inbound response.
type Action string

const (
	ActionHeartbeat     Action = "heartbeat"
	ActionRun           Action = "run"
	ActionFinalResponse Action = "final_response"
	ActionLLMNewToken   Action = "llm_new_token"
	ActionError         Action = "error"
)

// Outbound frame actions.
const (
	FrameSubscribe   = "subscribe"
	FrameSendMessage = "sendmessage"
)

// Mode is the response mode requested from the backend.
type Mode string

const (
	ModeChain           Mode = "chain"
	ModeImageGeneration Mode = "image_generation"
	ModeVideoGeneration Mode = "video_generation"
)

// ModeFor maps a model's primary output modality to a response mode.
func ModeFor(modality Modality) Mode {
	switch modality {
	case ModalityImage:
		return ModeImageGeneration
	case ModalityVideo:
		return ModeVideoGeneration
	default:
		return ModeChain
	}
}

// SubscribeFrame asks the backend to route a session's responses to this channel.
type SubscribeFrame struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
}

// SendMessageFrame carries a JSON-encoded run request for one session.
type SendMessageFrame struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ModelKwargs are the sampling parameters sent with a run.
type ModelKwargs struct {
	Streaming   bool    `json:"streaming"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
	Seed        int     `json:"seed"`
}

// RunData is the body of a run request.
type RunData struct {
	ModelName   string      `json:"modelName"`
	Provider    string      `json:"provider"`
	SessionID   string      `json:"sessionId"`
	Images      []string    `json:"images"`
	Documents   []string    `json:"documents"`
	Videos      []string    `json:"videos"`
	WorkspaceID string      `json:"workspaceId,omitempty"`
	ModelKwargs ModelKwargs `json:"modelKwargs"`
	Text        string      `json:"text"`
	Mode        Mode        `json:"mode"`
}

// RunRequest instructs the backend to generate a response for one session.
type RunRequest struct {
	Action         Action         `json:"action"`
	ModelInterface ModelInterface `json:"modelInterface"`
	Data           RunData        `json:"data"`
}

// Envelope is the outer shape of every inbound frame.
type Envelope struct {
	SessionID string          `json:"sessionId"`
	Message   json.RawMessage `json:"message"`
}

// ResponseData is the payload of an inbound response.
type ResponseData struct {
	SessionID string   `json:"sessionId,omitempty"`
	Token     *Token   `json:"token,omitempty"`
	Content   *string  `json:"content,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// MessageResponse is the decoded inner message of an envelope.
type MessageResponse struct {
	Action Action       `json:"action"`
	Data   ResponseData `json:"data"`
}

// ErrEmptyMessage is returned when an envelope carries no message.
var ErrEmptyMessage = errors.New("envelope has no message")

// Response normalizes the envelope message, which may be a JSON string holding
// the encoded response or the response object itself.
func (e *Envelope) Response() (*MessageResponse, error) {
	raw := e.Message
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrEmptyMessage
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("failed to decode message string: %w", err)
		}
		raw = json.RawMessage(encoded)
	}

	var resp MessageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}
