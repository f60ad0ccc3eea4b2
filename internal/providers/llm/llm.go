package llm

import (
	"context"
	"errors"
	"strings"
)

// Attachment is inline binary content sent alongside a prompt, for example
// a short video clip for delivery analysis.
type Attachment struct {
	MIMEType string
	Data     []byte
}

var ErrAttachmentUnsupported = errors.New("llm: attachment type not supported by provider")

type Provider interface {
	// Generate returns the full model response for prompt.
	Generate(ctx context.Context, prompt string, attachments ...Attachment) (string, error)
	Name() string
	Close() error
}

// ExtractJSON trims markdown fences and surrounding prose from a model
// response, returning the outermost JSON object or array.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}
