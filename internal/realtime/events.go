// Package realtime holds the socket wire contract shared by the server and
// the client channel, and the Redis pub/sub bus that fans events out to rooms.
package realtime

import "encoding/json"

// Outbound from the client.
const (
	EventJoinRoom       = "join:room"
	EventLeaveRoom      = "leave:room"
	EventInterviewStart = "interview:start"
	EventInterviewAudio = "interview:audio"
	EventInterviewVideo = "interview:video"
	EventInterviewEnd   = "interview:end"
)

// Inbound to the client.
const (
	EventAnalyticsUpdate = "analytics:update"
	EventNotification    = "notification"
	EventTranscript      = "interview:transcript"
	EventNervousness     = "interview:nervousness"
	EventQuestion        = "interview:question"
	EventAnswerEvaluated = "answer:evaluated"
	EventAgentAction     = "agent:action"
	EventOutreachUpdate  = "outreach:update"
	EventError           = "error"
)

// Envelope is the single frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func UserRoom(userID string) string           { return "user:" + userID }
func InterviewRoom(interviewID string) string { return "interview:" + interviewID }

// Channel is the Redis pub/sub channel backing a room.
func Channel(room string) string { return "room:" + room }

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type SessionPayload struct {
	InterviewID string `json:"interviewId"`
}

// AudioPayload carries one base64 encoded recorder chunk.
type AudioPayload struct {
	InterviewID string `json:"interviewId"`
	ChunkIndex  int64  `json:"chunkIndex"`
	MIMEType    string `json:"mimeType,omitempty"`
	Audio       string `json:"audio"`
	DurationMS  int64  `json:"durationMs,omitempty"`
	IsFinal     bool   `json:"isFinal,omitempty"`
}

type VideoPayload struct {
	InterviewID string `json:"interviewId"`
	Frame       string `json:"frame"`
}

type TranscriptPayload struct {
	InterviewID string  `json:"interviewId"`
	ChunkIndex  int64   `json:"chunkIndex"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	IsFinal     bool    `json:"isFinal"`
}

type NervousnessPayload struct {
	InterviewID string  `json:"interviewId"`
	Level       float64 `json:"level"`
}

type NotificationPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
