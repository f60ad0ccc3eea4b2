package stt

import (
	"context"
	"errors"
	"strings"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// ErrNoSpeech is returned when a recognition pass ended without hearing
// any speech.
var ErrNoSpeech = errors.New("stt: no speech detected")

type Audio struct {
	Data     []byte
	MIMEType string
}

type Result struct {
	Text       string
	Confidence float64
	Final      bool
}

type Provider interface {
	Transcribe(ctx context.Context, audio Audio, language string) (Result, error)
	Close() error
}

// EncodingFor maps a container MIME type to a recognizer encoding and
// sample rate. Unknown types fall back to LINEAR16 at 16kHz.
func EncodingFor(mime string) (speechpb.RecognitionConfig_AudioEncoding, int32) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	switch mime {
	case "audio/webm", "video/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, 48000
	case "audio/ogg":
		return speechpb.RecognitionConfig_OGG_OPUS, 48000
	case "audio/flac", "audio/x-flac":
		return speechpb.RecognitionConfig_FLAC, 0
	case "audio/mpeg", "audio/mp3":
		return speechpb.RecognitionConfig_MP3, 0
	default:
		return speechpb.RecognitionConfig_LINEAR16, 16000
	}
}
