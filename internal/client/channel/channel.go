// Package channel is the candidate side of the realtime socket: one
// authenticated connection per signed-in user, reconnected a bounded number
// of times. Pushes are advisory and nothing is queued while disconnected.
package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected = errors.New("channel: not connected")
	ErrClosed       = errors.New("channel: closed")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateFailed means the reconnect budget is spent; call Connect again
	// to start over.
	StateFailed State = "failed"
	StateClosed State = "closed"
)

type Handler func(data json.RawMessage)

type Options struct {
	URL    string // ws://host:port/ws
	Token  string
	Dialer *websocket.Dialer
	Logger logrus.FieldLogger

	MaxAttempts int           // reconnect attempts, default 5
	MinDelay    time.Duration // default 1s
	MaxDelay    time.Duration // default 5s

	// OnState is called outside the manager's lock on every state change.
	OnState func(State)
}

type handlerEntry struct {
	id int
	fn Handler
}

// Manager owns the socket connection. It is created after sign-in and
// closed on sign-out; it is safe for concurrent use.
type Manager struct {
	opts Options
	log  logrus.FieldLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	closed   bool
	rooms    map[string]bool
	handlers map[string][]handlerEntry
	nextID   int
	stop     chan struct{}

	writeMu sync.Mutex
}

func New(o Options) *Manager {
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MinDelay <= 0 {
		o.MinDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 5 * time.Second
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	return &Manager{
		opts:     o,
		log:      o.Logger.WithField("component", "channel"),
		state:    StateDisconnected,
		rooms:    map[string]bool{},
		handlers: map[string][]handlerEntry{},
		stop:     make(chan struct{}),
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s || (m.closed && s != StateClosed) {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool { return m.State() == StateConnected }

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	h := http.Header{}
	if m.opts.Token != "" {
		h.Set("Authorization", "Bearer "+m.opts.Token)
	}
	conn, resp, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Connect dials once. Later drops are retried in the background.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}
	m.attach(conn)
	return nil
}

func (m *Manager) attach(conn *websocket.Conn) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	rooms := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	m.setState(StateConnected)
	m.log.Debug("connected")

	// server-side room membership does not survive a reconnect
	sort.Strings(rooms)
	for _, r := range rooms {
		_ = m.Emit(realtime.EventJoinRoom, realtime.RoomPayload{RoomID: r})
	}
	go m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.dropped(conn, err)
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			m.log.WithError(err).Debug("ignoring malformed frame")
			continue
		}
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env realtime.Envelope) {
	m.mu.Lock()
	hs := append([]handlerEntry(nil), m.handlers[env.Event]...)
	m.mu.Unlock()

	for _, h := range hs {
		h.fn(env.Data)
	}
}

func (m *Manager) dropped(conn *websocket.Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	closed := m.closed
	m.mu.Unlock()
	_ = conn.Close()

	if closed {
		return
	}
	m.log.WithError(cause).Warn("disconnected")
	m.setState(StateReconnecting)
	go m.reconnect()
}

func (m *Manager) reconnect() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.MinDelay
	bo.MaxInterval = m.opts.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		select {
		case <-m.stop:
			return
		case <-time.After(bo.NextBackOff()):
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.MaxDelay+10*time.Second)
		conn, err := m.dial(ctx)
		cancel()
		if err == nil {
			m.attach(conn)
			return
		}
		m.log.WithError(err).WithField("attempt", attempt).Warn("reconnect failed")
	}
	m.setState(StateFailed)
}

// On registers h for event and returns a function that removes it.
func (m *Manager) On(event string, h Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.handlers[event] = append(m.handlers[event], handlerEntry{id: id, fn: h})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		hs := m.handlers[event]
		for i := range hs {
			if hs[i].id == id {
				m.handlers[event] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// Off removes every handler for event.
func (m *Manager) Off(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, event)
}

// Emit sends one frame. It returns ErrNotConnected instead of queueing.
func (m *Manager) Emit(event string, data any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b, err := realtime.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (m *Manager) JoinRoom(room string) error {
	m.mu.Lock()
	m.rooms[room] = true
	m.mu.Unlock()
	return m.Emit(realtime.EventJoinRoom, realtime.RoomPayload{RoomID: room})
}

func (m *Manager) LeaveRoom(room string) error {
	m.mu.Lock()
	delete(m.rooms, room)
	m.mu.Unlock()
	return m.Emit(realtime.EventLeaveRoom, realtime.RoomPayload{RoomID: room})
}

func (m *Manager) StartSession(interviewID string) error {
	return m.Emit(realtime.EventInterviewStart, realtime.SessionPayload{InterviewID: interviewID})
}

func (m *Manager) EndSession(interviewID string) error {
	return m.Emit(realtime.EventInterviewEnd, realtime.SessionPayload{InterviewID: interviewID})
}

func (m *Manager) SendAudio(interviewID string, index int64, chunk []byte, mime string, d time.Duration) error {
	return m.Emit(realtime.EventInterviewAudio, realtime.AudioPayload{
		InterviewID: interviewID,
		ChunkIndex:  index,
		MIMEType:    mime,
		Audio:       base64.StdEncoding.EncodeToString(chunk),
		DurationMS:  d.Milliseconds(),
	})
}

func (m *Manager) SendVideo(interviewID string, frame []byte) error {
	return m.Emit(realtime.EventInterviewVideo, realtime.VideoPayload{
		InterviewID: interviewID,
		Frame:       base64.StdEncoding.EncodeToString(frame),
	})
}

// Close disconnects and stops any reconnect loop. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	close(m.stop)
	m.state = StateClosed
	m.mu.Unlock()

	if m.opts.OnState != nil {
		m.opts.OnState(StateClosed)
	}
	if conn == nil {
		return nil
	}
	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	m.writeMu.Unlock()
	return conn.Close()
}
