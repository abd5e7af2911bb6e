package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
)

// ErrUnauthorized -> server menolak handshake, reconnect tidak dilanjutkan
var ErrUnauthorized = errors.New("realtime: unauthorized")

// ErrClosed -> socket sudah ditutup lewat Close
var ErrClosed = errors.New("realtime: socket closed")

type SocketConfig struct {
	// URL endpoint hub, mis. ws://localhost:8080/ws
	URL string
	// Token staff (query ?token=) atau SessionToken customer (?sessionToken=), salah satu
	Token        string
	SessionToken string

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Dialer      *websocket.Dialer
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 8 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

// Handler menerima data mentah event. Handler harus idempotent: event bisa diputar ulang
// setelah reconnect + refetch.
type Handler func(data json.RawMessage)

// Socket -> satu koneksi realtime per principal dengan reconnect eksponensial terbatas
type Socket struct {
	cfg SocketConfig

	mu           sync.Mutex
	handlers     map[string][]Handler
	onReconnect  []func()
	onDisconnect []func(error)
	conn         *websocket.Conn
	sessionEnded bool
	closed       bool

	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSocket(cfg SocketConfig) *Socket {
	return &Socket{
		cfg:      cfg.withDefaults(),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
}

// On mendaftarkan handler untuk satu event
func (s *Socket) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// OnReconnect dipanggil setiap kali koneksi pulih; tempat untuk refetch penuh
func (s *Socket) OnReconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnect = append(s.onReconnect, fn)
}

// OnDisconnect dipanggil sekali saat socket berhenti (Close, ditolak, atau percobaan habis)
func (s *Socket) OnDisconnect(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

// Done ditutup setelah socket berhenti total
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) dialURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("realtime: %w", err)
	}
	q := u.Query()
	switch {
	case s.cfg.SessionToken != "":
		q.Set("sessionToken", s.cfg.SessionToken)
	case s.cfg.Token != "":
		q.Set("token", s.cfg.Token)
	default:
		return "", ErrUnauthorized
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := s.dialURL()
	if err != nil {
		return nil, err
	}
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	return conn, nil
}

// Connect membuka koneksi pertama. Setelah sukses, reconnect berjalan otomatis di background.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	go s.run(conn)
	return nil
}

func (s *Socket) run(conn *websocket.Conn) {
	var final error
	defer func() {
		s.mu.Lock()
		s.closed = true
		listeners := append([]func(error){}, s.onDisconnect...)
		s.mu.Unlock()
		for _, fn := range listeners {
			fn(final)
		}
		close(s.done)
	}()

	for {
		s.readLoop(conn)

		s.mu.Lock()
		stop := s.closed || s.sessionEnded
		s.mu.Unlock()
		if stop {
			final = ErrClosed
			return
		}

		next, err := s.reconnect()
		if err != nil {
			final = err
			return
		}
		conn = next
		s.mu.Lock()
		hooks := append([]func(){}, s.onReconnect...)
		s.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	}
}

// reconnect -> backoff eksponensial dengan jumlah percobaan tetap, auth diulang setiap percobaan
func (s *Socket) reconnect() (*websocket.Conn, error) {
	delay := s.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return nil, ErrClosed
		}

		conn, err := s.dial(s.ctx)
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				conn.Close()
				return nil, ErrClosed
			}
			s.conn = conn
			s.mu.Unlock()
			return conn, nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		lastErr = err

		delay *= 2
		if delay > s.cfg.MaxDelay {
			delay = s.cfg.MaxDelay
		}
	}
	return nil, fmt.Errorf("realtime: gave up after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var msg events.Envelope
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event == events.SessionClosed {
			s.mu.Lock()
			s.sessionEnded = true
			s.mu.Unlock()
		}
		s.dispatch(msg)
	}
}

func (s *Socket) dispatch(msg events.Envelope) {
	s.mu.Lock()
	handlers := append([]Handler{}, s.handlers[msg.Event]...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(msg.Data)
	}
}

// Emit mengirim action ke server, mis. events.CallWaiter
func (s *Socket) Emit(action string, data interface{}) error {
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()
	if closed || conn == nil {
		return ErrClosed
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(events.Envelope{Event: action, Data: raw})
}

// Close menghentikan koneksi dan reconnect; semua subscription berakhir.
// Jangan dipanggil dari dalam Handler (Close menunggu goroutine pembaca selesai).
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		close(s.done)
		return nil
	}
	s.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	// readLoop bisa saja sudah menutup conn lebih dulu
	_ = conn.Close()
	<-s.done
	return nil
}
