package stt

import (
	"context"
	"errors"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type GoogleSpeech struct {
	c *speech.Client
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func recognitionConfig(mime, language string) *speechpb.RecognitionConfig {
	if language == "" {
		language = "en-US"
	}
	enc, rate := EncodingFor(mime)
	return &speechpb.RecognitionConfig{
		Encoding:                   enc,
		SampleRateHertz:            rate,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
}

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio Audio, language string) (Result, error) {
	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig(audio.MIMEType, language),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		},
	})
	if err != nil {
		return Result{}, err
	}

	var best Result
	for _, r := range resp.Results {
		for _, alt := range r.Alternatives {
			if alt.Transcript != "" && float64(alt.Confidence) >= best.Confidence {
				best = Result{Text: alt.Transcript, Confidence: float64(alt.Confidence), Final: true}
			}
		}
	}
	if best.Text == "" {
		return Result{}, ErrNoSpeech
	}
	return best, nil
}

// Listen runs one streaming recognition pass over audio, calling emit for
// every interim and final result. It returns nil when the stream ends
// naturally after hearing speech, ErrNoSpeech when it ended without any,
// and any other error as fatal.
func (g *GoogleSpeech) Listen(ctx context.Context, audio <-chan []byte, mime, language string, emit func(Result)) error {
	stream, err := g.c.StreamingRecognize(ctx)
	if err != nil {
		return classify(err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig(mime, language),
				InterimResults: true,
			},
		},
	}); err != nil {
		return classify(err)
	}

	go func() {
		defer stream.CloseSend()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-audio:
				if !ok {
					return
				}
				if err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
				}); err != nil {
					return
				}
			}
		}
	}()

	heard := false
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := classify(err); err != nil {
				return err
			}
			break
		}
		if e := resp.GetError(); e != nil && e.GetCode() != 0 {
			return fmt.Errorf("stt: recognizer error %d: %s", e.GetCode(), e.GetMessage())
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
				continue
			}
			heard = true
			alt := r.Alternatives[0]
			emit(Result{Text: alt.Transcript, Confidence: float64(alt.Confidence), Final: r.IsFinal})
		}
	}

	if !heard {
		return ErrNoSpeech
	}
	return nil
}

// classify turns recognizer errors into the Listen contract: stream length
// limits end the pass naturally, everything else is fatal.
func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.OutOfRange, codes.DeadlineExceeded:
		return nil
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("stt: not allowed: %w", err)
	default:
		return err
	}
}
