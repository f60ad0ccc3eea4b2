package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/careerforge/careerforge/internal/services"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/careerforge/careerforge/internal/workers"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	maxChunkBytes = 1 << 20
	pongWait      = 60 * time.Second
	pingEvery     = 25 * time.Second
)

type WSHandler struct {
	interviews services.InterviewService
	buffers    services.BufferService
	events     services.EventService
	bus        *realtime.RedisBus
	redis      *redis.Client
	stream     string
	language   string
	log        logrus.FieldLogger
	upgrader   websocket.Upgrader
}

type WSDeps struct {
	Interviews services.InterviewService
	Buffers    services.BufferService
	Events     services.EventService
	Redis      *redis.Client
	Stream     string
	Language   string
	Logger     logrus.FieldLogger
	// AllowedOrigins empty means any origin.
	AllowedOrigins []string
}

func NewWSHandler(d WSDeps) *WSHandler {
	if d.Stream == "" {
		d.Stream = "interview:audio"
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	allowed := map[string]bool{}
	for _, o := range d.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &WSHandler{
		interviews: d.Interviews,
		buffers:    d.Buffers,
		events:     d.Events,
		bus:        realtime.NewRedisBus(d.Redis),
		redis:      d.Redis,
		stream:     d.Stream,
		language:   d.Language,
		log:        d.Logger.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

func (w *wsConn) emit(event string, data any) {
	b, err := realtime.NewEnvelope(event, data)
	if err != nil {
		return
	}
	_ = w.writeText(b)
}

func (w *wsConn) fail(code utils.Code, msg string) {
	w.emit(realtime.EventError, realtime.ErrorPayload{Code: string(code), Message: msg})
}

// wsSession is the per-connection state.
type wsSession struct {
	h      *WSHandler
	conn   *wsConn
	pubsub *redis.PubSub
	userID string

	owned  map[string]bool // interview ids verified for this user
	frames map[string]int
}

// Connect serves GET /ws. The user joins their own room immediately;
// interview rooms are joined explicitly or by interview:start.
func (h *WSHandler) Connect(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &wsSession{
		h:      h,
		conn:   &wsConn{c: conn},
		pubsub: h.bus.Subscribe(ctx, realtime.UserRoom(userID)),
		userID: userID,
		owned:  map[string]bool{},
		frames: map[string]int{},
	}
	defer s.pubsub.Close()

	log := h.log.WithField("user_id", userID)
	log.Debug("socket connected")

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(2 * maxChunkBytes)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))

			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
				s.conn.fail(utils.CodeInvalidArgument, "invalid envelope")
				continue
			}
			s.dispatch(ctx, env)
		}
	}()

	msgs := s.pubsub.Channel()
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			log.Debug("socket closed")
			return
		case <-ticker.C:
			if err := s.conn.ping(); err != nil {
				return
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			// payload is already an envelope
			if werr := s.conn.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}

func decode[T any](raw json.RawMessage) (T, bool) {
	var v T
	if len(raw) == 0 {
		return v, false
	}
	return v, json.Unmarshal(raw, &v) == nil
}

func (s *wsSession) dispatch(ctx context.Context, env realtime.Envelope) {
	switch env.Event {
	case realtime.EventJoinRoom:
		p, ok := decode[realtime.RoomPayload](env.Data)
		if !ok || p.RoomID == "" {
			s.conn.fail(utils.CodeInvalidArgument, "roomId is required")
			return
		}
		s.join(ctx, p.RoomID)

	case realtime.EventLeaveRoom:
		p, ok := decode[realtime.RoomPayload](env.Data)
		if !ok || p.RoomID == "" {
			s.conn.fail(utils.CodeInvalidArgument, "roomId is required")
			return
		}
		_ = s.pubsub.Unsubscribe(ctx, realtime.Channel(p.RoomID))

	case realtime.EventInterviewStart:
		p, ok := decode[realtime.SessionPayload](env.Data)
		if !ok || !s.owns(ctx, p.InterviewID) {
			s.conn.fail(utils.CodeNotFound, "interview not found")
			return
		}
		_ = s.pubsub.Subscribe(ctx, realtime.Channel(realtime.InterviewRoom(p.InterviewID)))
		s.record(ctx, p.InterviewID, env.Event, nil)
		s.notify(ctx, "interview_started", "Interview session started", p.InterviewID)

	case realtime.EventInterviewAudio:
		p, ok := decode[realtime.AudioPayload](env.Data)
		if !ok || !s.owns(ctx, p.InterviewID) {
			s.conn.fail(utils.CodeNotFound, "interview not found")
			return
		}
		s.enqueueAudio(ctx, p)

	case realtime.EventInterviewVideo:
		p, ok := decode[realtime.VideoPayload](env.Data)
		if !ok || !s.countFrame(ctx, p.InterviewID) {
			s.conn.fail(utils.CodeNotFound, "interview not found")
			return
		}

	case realtime.EventInterviewEnd:
		p, ok := decode[realtime.SessionPayload](env.Data)
		if !ok || !s.owns(ctx, p.InterviewID) {
			s.conn.fail(utils.CodeNotFound, "interview not found")
			return
		}
		s.record(ctx, p.InterviewID, env.Event, map[string]any{"video_frames": s.frames[p.InterviewID]})
		delete(s.frames, p.InterviewID)
		s.notify(ctx, "interview_ended", "Interview session ended", p.InterviewID)
		_ = s.pubsub.Unsubscribe(ctx, realtime.Channel(realtime.InterviewRoom(p.InterviewID)))

	default:
		s.conn.fail(utils.CodeInvalidArgument, "unknown event")
	}
}

// join allows the caller's own user room and rooms of interviews they own.
func (s *wsSession) join(ctx context.Context, room string) {
	switch {
	case room == realtime.UserRoom(s.userID):
	case strings.HasPrefix(room, "interview:") && s.owns(ctx, strings.TrimPrefix(room, "interview:")):
	default:
		s.conn.fail(utils.CodeForbidden, "cannot join room")
		return
	}
	if err := s.pubsub.Subscribe(ctx, realtime.Channel(room)); err != nil {
		s.conn.fail(utils.CodeUnavailable, "failed to join room")
	}
}

func (s *wsSession) owns(ctx context.Context, interviewID string) bool {
	if interviewID == "" {
		return false
	}
	if s.owned[interviewID] {
		return true
	}
	if _, err := s.h.interviews.Get(ctx, s.userID, interviewID); err != nil {
		return false
	}
	s.owned[interviewID] = true
	return true
}

// countFrame tallies a video frame for an interview the user owns.
func (s *wsSession) countFrame(ctx context.Context, interviewID string) bool {
	if !s.owns(ctx, interviewID) {
		return false
	}
	s.frames[interviewID]++
	return true
}

func (s *wsSession) enqueueAudio(ctx context.Context, p realtime.AudioPayload) {
	raw := p.Audio
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[i+1:]
	}
	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(audio) == 0 {
		s.conn.fail(utils.CodeInvalidArgument, "audio must be base64")
		return
	}
	if len(audio) > maxChunkBytes {
		s.conn.fail(utils.CodeInvalidArgument, "audio chunk too large")
		return
	}

	if _, err := s.h.buffers.InsertAudioChunk(ctx, p.InterviewID, s.userID, p.ChunkIndex, len(audio)); err != nil {
		s.conn.fail(utils.CodeInternal, "failed to buffer audio")
		return
	}

	dur := p.DurationMS
	if dur <= 0 {
		dur = 1000
	}
	if err := s.h.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.h.stream,
		MaxLen: 10000,
		Approx: true,
		Values: workers.ChunkFields(workers.Chunk{
			InterviewID: p.InterviewID,
			UserID:      s.userID,
			ChunkIndex:  p.ChunkIndex,
			MIMEType:    p.MIMEType,
			Language:    s.h.language,
			Audio:       audio,
			DurationMS:  dur,
		}),
	}).Err(); err != nil {
		s.conn.fail(utils.CodeUnavailable, "failed to enqueue audio")
	}
}

func (s *wsSession) record(ctx context.Context, interviewID, event string, detail map[string]any) {
	if s.h.events == nil {
		return
	}
	if err := s.h.events.Record(ctx, s.userID, interviewID, event, detail); err != nil {
		s.h.log.WithError(err).Warn("record session event failed")
	}
}

func (s *wsSession) notify(ctx context.Context, typ, msg, interviewID string) {
	room := realtime.UserRoom(s.userID)
	_ = s.h.bus.Publish(ctx, room, realtime.EventNotification, realtime.NotificationPayload{Type: typ, Message: msg})
	_ = s.h.bus.Publish(ctx, room, realtime.EventAnalyticsUpdate, map[string]any{"interviewId": interviewID, "event": typ})
}
