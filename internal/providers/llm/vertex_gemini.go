package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
	name   string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.4)
	return &VertexGemini{client: c, model: m, name: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Name() string { return "vertex/" + v.name }

// Generate streams the response and concatenates the text parts.
func (v *VertexGemini) Generate(ctx context.Context, prompt string, attachments ...Attachment) (string, error) {
	parts := []vertexgenai.Part{vertexgenai.Text(prompt)}
	for _, a := range attachments {
		parts = append(parts, vertexgenai.Blob{MIMEType: a.MIMEType, Data: a.Data})
	}

	var sb strings.Builder
	it := v.model.GenerateContentStream(ctx, parts...)
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					sb.WriteString(string(t))
				}
			}
		}
	}
	return sb.String(), nil
}
