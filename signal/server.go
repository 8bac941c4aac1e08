package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jd-code76/provinent-scripture-study-sub000/config"
	"github.com/jd-code76/provinent-scripture-study-sub000/identity"
	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/metrics"
)

const (
	subsystem   = "signal"
	writeWait   = 10 * time.Second
	sendBacklog = 64
)

var (
	clientsGauge = metrics.NewGauge("clients", subsystem, "Registered endpoints", nil).WithLabelValues()
	framesTotal  = metrics.NewCounter(
		"frames_total",
		subsystem,
		"Frames received by type and outcome",
		[]string{"type", "outcome"},
	)
)

type Opt func(*Server)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server relays signaling frames between registered endpoints.
type Server struct {
	logger   *zap.Logger
	cfg      config.SignalConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

func NewServer(cfg config.SignalConfig, opts ...Opt) *Server {
	s := &Server{
		logger: zap.NewNop(),
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[string]*client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler serves the websocket endpoint on the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	return mux
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info("signal server listening", zap.String("address", s.cfg.Listen), zap.String("path", s.cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("signal server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeAll()
		return err
	})
	return eg.Wait()
}

// Clients returns the number of registered endpoints.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !identity.ValidCode(id) {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendBacklog),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst),
	}
	if !s.register(c) {
		s.logger.Debug("id already registered", log.ZPeer(id))
		framesTotal.WithLabelValues("OPEN", "unavailable").Inc()
		writeNow(conn, errorMessage(ErrorUnavailableID, "", "ID "+id+" is taken"))
		conn.Close()
		return
	}
	defer s.unregister(c)

	go c.writePump(s.pingInterval())
	c.enqueue(Message{Type: TypeOpen})
	s.readPump(c)
}

func (s *Server) pingInterval() time.Duration {
	return s.cfg.ExpireTimeout / 2
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		return false
	}
	s.clients[c.id] = c
	clientsGauge.Inc()
	s.logger.Debug("endpoint registered", log.ZPeer(c.id))
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if s.clients[c.id] == c {
		delete(s.clients, c.id)
		clientsGauge.Dec()
	}
	s.mu.Unlock()
	c.close()
	s.logger.Debug("endpoint gone", log.ZPeer(c.id))
}

func (s *Server) lookup(id string) *client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[id]
}

func (s *Server) closeAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.cfg.ExpireTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.ExpireTimeout))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("read failed", log.ZPeer(c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.ExpireTimeout))
		if !c.limiter.Allow() {
			s.logger.Warn("client exceeded rate limit", log.ZPeer(c.id))
			framesTotal.WithLabelValues("any", "rate_limited").Inc()
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			framesTotal.WithLabelValues("any", "malformed").Inc()
			c.enqueue(errorMessage(ErrorInvalidMessage, "", "malformed frame"))
			continue
		}
		s.route(c, msg)
	}
}

func (s *Server) route(from *client, msg Message) {
	typ := string(msg.Type)
	switch msg.Type {
	case TypeHeartbeat:
		framesTotal.WithLabelValues(typ, "ok").Inc()
		return
	case TypeOffer, TypeAnswer, TypeLeave:
	default:
		framesTotal.WithLabelValues("unknown", "malformed").Inc()
		from.enqueue(errorMessage(ErrorInvalidMessage, "", "unknown frame type"))
		return
	}
	to := s.lookup(msg.Dst)
	if to == nil {
		framesTotal.WithLabelValues(typ, "peer_unavailable").Inc()
		if msg.Type != TypeLeave {
			from.enqueue(errorMessage(ErrorPeerUnavailable, msg.Dst, "Could not connect to peer "+msg.Dst))
		}
		return
	}
	msg.Src = from.id
	to.enqueue(msg)
	framesTotal.WithLabelValues(typ, "ok").Inc()
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	once    sync.Once
}

// enqueue drops the frame if the client is not keeping up.
func (c *client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) writePump(ping time.Duration) {
	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeNow(conn *websocket.Conn, msg Message) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(msg)
}
