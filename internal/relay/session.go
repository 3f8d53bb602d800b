package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/agentx/liveassist/internal/models"
	"github.com/agentx/liveassist/internal/repository"
	"github.com/agentx/liveassist/internal/speech"
)

// Frame types for out-of-band messages to the client.
const (
	FrameStatus = "status"
	FrameError  = "error"
)

// Codes carried by status and error frames.
const (
	CodeConnected           = "connected"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeUpstreamClosed      = "upstream_closed"
	CodeLeaseLost           = "lease_lost"
	CodeInternal            = "internal_error"
)

const (
	closeWriteTimeout = time.Second
	persistTimeout    = 5 * time.Second
)

// ClientConn is the browser side of a relay session. Both the fiber websocket
// connection and a gorilla connection satisfy it.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Frame is an out-of-band status or error message.
type Frame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// SessionConfig holds the per-session settings.
type SessionConfig struct {
	ConversationID    string
	TenantID          string
	SubjectID         string
	KeepAliveInterval time.Duration
}

// Session couples one client connection with one upstream recognition stream.
// Either side ending tears down both; teardown runs exactly once.
type Session struct {
	cfg       SessionConfig
	client    ClientConn
	connector speech.Connector
	sink      repository.TranscriptRepository
	lease     Lease
	logger    *logrus.Entry

	writeMu sync.Mutex

	upstreamMu sync.Mutex
	upstream   speech.Stream

	closeOnce sync.Once
	closed    chan struct{}

	framesIn      atomic.Int64
	framesDropped atomic.Int64
	finals        atomic.Int64
}

// NewSession creates a relay session. lease may be nil.
func NewSession(cfg SessionConfig, client ClientConn, connector speech.Connector, sink repository.TranscriptRepository, lease Lease, logger *logrus.Logger) *Session {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 8 * time.Second
	}
	return &Session{
		cfg:       cfg,
		client:    client,
		connector: connector,
		sink:      sink,
		lease:     lease,
		logger: logger.WithFields(logrus.Fields{
			"conversation_id": cfg.ConversationID,
			"tenant_id":       cfg.TenantID,
		}),
		closed: make(chan struct{}),
	}
}

// Run opens the upstream stream and relays until either side ends or ctx is
// cancelled. A connect failure is reported to the client once and closes it
// with 1011.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	stream, err := s.connector.Connect(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to open speech stream")
		s.sendFrame(Frame{Type: FrameError, Code: CodeUpstreamUnavailable, Message: "speech recognition unavailable"})
		s.closeClient(websocket.CloseInternalServerErr, CodeUpstreamUnavailable)
		return err
	}

	s.upstreamMu.Lock()
	s.upstream = stream
	s.upstreamMu.Unlock()
	if s.isClosed() {
		_ = stream.Close()
		return nil
	}

	s.logger.Info("relay session started")
	s.sendFrame(Frame{Type: FrameStatus, Code: CodeConnected})

	var g errgroup.Group
	g.Go(s.pumpAudio)
	g.Go(s.pumpEvents)
	g.Go(func() error { return s.keepAlive(ctx) })
	err = g.Wait()

	s.logger.WithFields(logrus.Fields{
		"frames":  s.framesIn.Load(),
		"dropped": s.framesDropped.Load(),
		"finals":  s.finals.Load(),
	}).Info("relay session ended")
	return err
}

// Close tears the session down: upstream stream, client connection and lease.
// Safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.upstreamMu.Lock()
		upstream := s.upstream
		s.upstreamMu.Unlock()

		if upstream != nil {
			if err := upstream.Close(); err != nil {
				s.logger.WithError(err).Debug("closing speech stream")
			}
		}
		if err := s.client.Close(); err != nil {
			s.logger.WithError(err).Debug("closing client connection")
		}
		if s.lease != nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeWriteTimeout)
			defer cancel()
			if err := s.lease.Release(ctx); err != nil {
				s.logger.WithError(err).Warn("failed to release relay lease")
			}
		}
	})
}

// Done is closed once teardown has started.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// pumpAudio forwards client audio frames upstream in receipt order. Frames
// arriving while the upstream stream is not ready are dropped.
func (s *Session) pumpAudio() error {
	defer s.Close()

	for {
		messageType, data, err := s.client.ReadMessage()
		if err != nil {
			// Client going away is the normal end of a call.
			if !s.isClosed() {
				s.logger.WithError(err).Debug("client connection ended")
			}
			return nil
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		s.framesIn.Add(1)

		if !s.upstream.Ready() {
			s.framesDropped.Add(1)
			continue
		}
		if err := s.upstream.SendAudio(data); err != nil {
			if errors.Is(err, speech.ErrNotReady) {
				s.framesDropped.Add(1)
				continue
			}
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("send audio: %w", err)
		}
	}
}

// pumpEvents relays upstream events to the client and persists finals.
func (s *Session) pumpEvents() error {
	defer s.Close()

	for {
		raw, err := s.upstream.Receive()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			s.sendFrame(Frame{Type: FrameError, Code: CodeUpstreamClosed, Message: "speech recognition stream ended"})
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("receive upstream: %w", err)
		}
		if s.isClosed() {
			return nil
		}
		if err := s.handleUpstream(raw); err != nil {
			return err
		}
	}
}

func (s *Session) handleUpstream(raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("relay event handling failed")
			s.sendFrame(Frame{Type: FrameError, Code: CodeInternal, Message: "relay failure"})
			err = fmt.Errorf("relay event handling: %v", r)
		}
	}()

	event, decodeErr := speech.Decode(raw)
	if decodeErr != nil {
		s.logger.WithError(decodeErr).Debug("dropping upstream message")
		return nil
	}

	if err := s.writeClient(websocket.TextMessage, event.Raw); err != nil {
		if s.isClosed() {
			return nil
		}
		return fmt.Errorf("write client: %w", err)
	}

	if event.Failure != nil {
		s.logger.WithFields(logrus.Fields{
			"code":    event.Failure.Code,
			"message": event.Failure.Message,
		}).Warn("speech backend reported an error")
		return nil
	}

	if t := event.Transcription; t != nil && t.IsFinal {
		if text := t.Text(); text != "" {
			s.persist(text, models.SpeakerFromIndex(t.SpeakerIndex()))
		}
	}
	return nil
}

// persist appends one final fragment. Failures are logged and relaying goes on.
func (s *Session) persist(text string, speaker models.SpeakerLabel) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	_, err := s.sink.Append(ctx, repository.AppendFragment{
		ConversationID: s.cfg.ConversationID,
		TenantID:       s.cfg.TenantID,
		Content:        text,
		IsFinal:        true,
		SpeakerLabel:   speaker,
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to persist transcript fragment")
		return
	}
	s.finals.Add(1)
}

// keepAlive pings upstream while the session is open and keeps the lease
// fresh. It also ends the session when ctx is cancelled.
func (s *Session) keepAlive(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return nil
		case <-ctx.Done():
			s.Close()
			return nil
		case <-ticker.C:
			if err := s.upstream.KeepAlive(); err != nil && !errors.Is(err, speech.ErrNotReady) {
				s.logger.WithError(err).Debug("speech keepalive failed")
			}
			if s.lease == nil {
				continue
			}
			if err := s.lease.Refresh(ctx); err != nil {
				if errors.Is(err, ErrConversationBusy) {
					s.logger.Warn("relay lease lost, closing session")
					s.sendFrame(Frame{Type: FrameError, Code: CodeLeaseLost, Message: "conversation taken over by another session"})
					s.Close()
					return nil
				}
				s.logger.WithError(err).Warn("failed to refresh relay lease")
			}
		}
	}
}

func (s *Session) sendFrame(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := s.writeClient(websocket.TextMessage, data); err != nil {
		s.logger.WithError(err).Debug("failed to send frame to client")
	}
}

func (s *Session) writeClient(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.client.WriteMessage(messageType, data)
}

func (s *Session) closeClient(code int, reason string) {
	_ = s.writeClient(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
