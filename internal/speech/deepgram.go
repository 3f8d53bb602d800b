package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/agentx/liveassist/internal/config"
)

var (
	// ErrUpstreamUnavailable is returned when the speech backend cannot be reached
	// or refuses the stream.
	ErrUpstreamUnavailable = errors.New("speech backend unavailable")
	// ErrNotReady is returned when audio is written to a stream that is not open.
	ErrNotReady = errors.New("speech stream not ready")
)

var (
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
)

// Stream is one live recognition stream to the speech backend.
type Stream interface {
	// SendAudio forwards one binary audio frame.
	SendAudio(frame []byte) error
	// Ready reports whether the stream currently accepts audio.
	Ready() bool
	// KeepAlive signals the backend that the stream is idle but alive.
	KeepAlive() error
	// Receive blocks for the next upstream message.
	Receive() ([]byte, error)
	// Close ends the stream. Safe to call more than once.
	Close() error
}

// Connector opens recognition streams.
type Connector interface {
	Connect(ctx context.Context) (Stream, error)
}

// DeepgramConnector opens live transcription streams against the Deepgram
// listen websocket API.
type DeepgramConnector struct {
	cfg    config.SpeechConfig
	dialer *websocket.Dialer
	logger *logrus.Logger
}

// NewDeepgramConnector creates a connector for the configured deployment.
func NewDeepgramConnector(cfg config.SpeechConfig, logger *logrus.Logger) *DeepgramConnector {
	return &DeepgramConnector{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: logger,
	}
}

// ListenURL builds the stream URL with the negotiated recognition parameters.
func ListenURL(cfg config.SpeechConfig) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse speech url: %w", err)
	}

	q := u.Query()
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.Encoding != "" {
		q.Set("encoding", cfg.Encoding)
	}
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	q.Set("diarize", strconv.FormatBool(cfg.Diarize))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("punctuate", strconv.FormatBool(cfg.Punctuate))
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Connect dials the backend. Any failure is reported as ErrUpstreamUnavailable.
func (c *DeepgramConnector) Connect(ctx context.Context) (Stream, error) {
	target, err := ListenURL(c.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Token "+c.cfg.APIKey)
	}

	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake status %d: %v", ErrUpstreamUnavailable, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	c.logger.WithField("model", c.cfg.Model).Debug("speech stream opened")
	return newWSStream(conn), nil
}

type wsStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) Ready() bool {
	return !s.closed.Load()
}

func (s *wsStream) SendAudio(frame []byte) error {
	return s.write(websocket.BinaryMessage, frame)
}

func (s *wsStream) KeepAlive() error {
	return s.write(websocket.TextMessage, keepAliveMessage)
}

func (s *wsStream) write(messageType int, data []byte) error {
	if !s.Ready() {
		return ErrNotReady
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *wsStream) Receive() ([]byte, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)

		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		// Ask the backend to flush; the stream is torn down regardless.
		_ = s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage)
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}
