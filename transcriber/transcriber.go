package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrUnavailable means no recognition provider is configured.
var ErrUnavailable = errors.New("speech recognition unavailable")

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

type baseTranscriber struct {
	lang string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// New returns the provider configured in the environment. DEEPGRAM_URL
// overrides the listen endpoint.
func New() (Transcriber, error) {
	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		var opts []DeepgramOption
		if u := os.Getenv("DEEPGRAM_URL"); u != "" {
			opts = append(opts, WithEndpoint(u))
		}
		return NewDeepgram(key, opts...), nil
	}
	return nil, fmt.Errorf("set DEEPGRAM_API_KEY: %w", ErrUnavailable)
}
