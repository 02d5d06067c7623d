package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"talkback/encoder"

	"nhooyr.io/websocket"
)

const (
	deepgramStreamURL   = "wss://api.deepgram.com/v1/listen"
	deepgramModel       = "nova-3"
	deepgramDialTimeout = 10 * time.Second
	deepgramSendTimeout = 5 * time.Second
)

type Deepgram struct {
	baseTranscriber
	apiKey      string
	endpoint    string
	dialTimeout time.Duration
}

type DeepgramOption func(*Deepgram)

// WithEndpoint points the client at a self-hosted Deepgram listen URL.
func WithEndpoint(u string) DeepgramOption {
	return func(d *Deepgram) { d.endpoint = u }
}

func WithDialTimeout(t time.Duration) DeepgramOption {
	return func(d *Deepgram) { d.dialTimeout = t }
}

func NewDeepgram(apiKey string, opts ...DeepgramOption) *Deepgram {
	d := &Deepgram{apiKey: apiKey, endpoint: deepgramStreamURL, dialTimeout: deepgramDialTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deepgram) Name() string { return "deepgram" }

// NewSession dials in the background so audio can be fed immediately.
// Dial failures surface through Err and Close.
func (d *Deepgram) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if cfg.Language != "" {
		d.SetLanguage(cfg.Language)
	}
	lang := d.GetLanguage()
	return newStreamSession(cfg, func() (rawStreamSession, error) {
		return d.startStream(ctx, lang, cfg.Interim)
	}), nil
}

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStreamSession struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (d *Deepgram) streamURL(lang string, interim bool) (string, error) {
	endpoint, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	q := endpoint.Query()
	q.Set("model", deepgramModel)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", encoder.SampleRate))
	q.Set("channels", fmt.Sprintf("%d", encoder.Channels))
	q.Set("punctuate", "true")
	q.Set("interim_results", fmt.Sprintf("%t", interim))
	if lang != "" {
		q.Set("language", lang)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *Deepgram) startStream(ctx context.Context, lang string, interim bool) (rawStreamSession, error) {
	u, err := d.streamURL(lang, interim)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	dialCtx, cancelDial := context.WithTimeout(ctx, d.dialTimeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	return &deepgramStreamSession{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

// write fails, closing the connection, when the peer stops reading.
func (s *deepgramStreamSession) write(typ websocket.MessageType, p []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, deepgramSendTimeout)
	defer cancel()
	return s.conn.Write(ctx, typ, p)
}

func (s *deepgramStreamSession) Send(pcm []byte) error {
	return s.write(websocket.MessageBinary, pcm)
}

func (s *deepgramStreamSession) CloseSend() error {
	return s.write(websocket.MessageText, []byte(`{"type":"Finalize"}`))
}

func (s *deepgramStreamSession) Recv() (streamUpdate, error) {
	_, data, err := s.conn.Read(s.ctx)
	if err != nil {
		return streamUpdate{}, err
	}
	return parseStreamResponse(data)
}

func parseStreamResponse(data []byte) (streamUpdate, error) {
	var resp deepgramStreamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return streamUpdate{}, err
	}

	transcript := ""
	if len(resp.Channel.Alternatives) > 0 {
		transcript = resp.Channel.Alternatives[0].Transcript
	}

	return streamUpdate{
		Control:      resp.Type != "" && resp.Type != "Results",
		Transcript:   strings.TrimSpace(transcript),
		IsFinal:      resp.IsFinal,
		SpeechFinal:  resp.SpeechFinal,
		FromFinalize: resp.FromFinalize,
	}, nil
}

func (s *deepgramStreamSession) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
