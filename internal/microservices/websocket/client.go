package websocket

import (
	"context"
	"errors"
	"time"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/service"
	"coursehub/internal/shared"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const ( // ping pong heartbeat keeps idle sessions alive
	WriteWait      = 10 * time.Second    // max time to write a frame to the peer
	PongWait       = 60 * time.Second    // no pong within this window = connection is gone
	PingPeriod     = (PongWait * 9) / 10 // 90% of pong wait to allow for network jitter
	MaxMessageSize = 512                 // player frames are tiny
)

// time allowed for the final flush after the socket drops
const endSessionTimeout = 10 * time.Second

// Session is one player connection watching one lesson.
type Session struct {
	UserID   string
	LessonID string
	Conn     *websocket.Conn
	Send     chan []byte
	Limiter  *rate.Limiter

	progress service.ProgressService
	logger   *zap.Logger
}

func NewSession(userID, lessonID string, conn *websocket.Conn, progress service.ProgressService, logger *zap.Logger) *Session {
	return &Session{
		UserID:   userID,
		LessonID: lessonID,
		Conn:     conn,
		Send:     make(chan []byte, 16),
		Limiter:  rate.NewLimiter(rate.Limit(10), 20), // 10 msgs/sec with burst of 20
		progress: progress,
		logger: logger.With(
			zap.String("user_id", userID),
			zap.String("lesson_id", lessonID),
		),
	}
}

// ReadPump handles inbound frames until the peer goes away, then ends the session
// so the last buffered position is written.
func (s *Session) ReadPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), endSessionTimeout)
		defer cancel()
		if err := s.progress.EndSession(ctx, s.UserID, s.LessonID); err != nil {
			s.logger.Warn("end_session_failed", zap.Error(err))
		}
		close(s.Send)
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(MaxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(PongWait))
	s.Conn.SetPongHandler(func(string) error {
		return s.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("session_read_error", zap.Error(err))
			}
			return
		}

		if !s.Limiter.Allow() {
			s.logger.Warn("rate_limit_exceeded")
			s.reply(NewErrorReply("rate limit exceeded"))
			continue
		}

		msg, err := MessageFromJSON(data)
		if err != nil {
			s.reply(NewErrorReply("invalid message"))
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg *Message) {
	switch msg.Type {
	case TypePosition:
		if msg.PositionSeconds == nil {
			s.reply(NewErrorReply("position_seconds is required"))
			return
		}
		err := s.progress.ReportPosition(context.Background(), dto.PositionUpdate{
			UserID:          s.UserID,
			LessonID:        s.LessonID,
			PositionSeconds: *msg.PositionSeconds,
			DurationSeconds: msg.DurationSeconds,
		})
		if err != nil {
			s.reply(NewErrorReply(errorMessage(err)))
		}

	case TypeComplete:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rec, err := s.progress.ReportCompletion(ctx, dto.CompletionEvent{
			UserID:          s.UserID,
			LessonID:        s.LessonID,
			DurationSeconds: msg.DurationSeconds,
		})
		if err != nil {
			s.reply(NewErrorReply(errorMessage(err)))
			return
		}
		resp := dto.NewProgressResponse(rec)
		s.reply(NewAck(TypeComplete, &resp))

	case TypePause:
		ctx, cancel := context.WithTimeout(context.Background(), endSessionTimeout)
		defer cancel()
		if err := s.progress.EndSession(ctx, s.UserID, s.LessonID); err != nil {
			s.reply(NewErrorReply(errorMessage(err)))
			return
		}
		s.reply(NewAck(TypePause, nil))

	default:
		s.reply(NewErrorReply("unknown message type"))
	}
}

// errorMessage keeps driver details off the wire.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrReference):
		return err.Error()
	default:
		return "progress may not be saved"
	}
}

func (s *Session) reply(r *Reply) {
	data, err := r.ToJSON()
	if err != nil {
		s.logger.Error("reply_marshal_failed", zap.Error(err))
		return
	}
	select {
	case s.Send <- data:
	default:
		s.logger.Warn("send_buffer_full", zap.String("type", string(r.Type)))
	}
}

// WritePump drains Send and keeps the connection alive with pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
