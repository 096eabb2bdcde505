// Package wsserver hosts the /ws WebSocket listener: HTTP upgrade, the
// read/write pump pair, and connection-level resource limits (rate limit,
// max buffer size). It is the framing layer spec.md §1 treats as an
// external collaborator, specified only by its message contract; this
// implementation is grounded almost line-for-line on the teacher's
// backend/server/websocket.Server (ping/pong deadlines, graceful shutdown)
// generalized from path-parameter room/user binding to join-message binding
// through internal/dispatcher.
package wsserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adwski/meetsignal/internal/dispatcher"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultPingInterval = 25 * time.Second
	defaultPongWait     = 30 * time.Second
	defaultWriteWait     = 5 * time.Second

	defaultMaxBufferSize = 1 << 20 // 1 MiB, spec.md §5 default

	defaultRateLimitMax    = 10
	defaultRateLimitWindow = 60 * time.Second
)

var ErrUnexpected = errors.New("unexpected server error")

// Config bundles the server's constructor dependencies.
type Config struct {
	Logger      *zerolog.Logger
	Dispatcher  *dispatcher.Dispatcher
	ListenAddr  string

	MaxBufferSize   int64
	RateLimitMax    int
	RateLimitWindow time.Duration
}

type Server struct {
	logger zerolog.Logger
	disp   *dispatcher.Dispatcher
	up     *websocket.Upgrader
	rl     *rateLimiter

	maxBufferSize int64

	*http.Server
}

func NewServer(cfg Config) *Server {
	maxBuf := cfg.MaxBufferSize
	if maxBuf <= 0 {
		maxBuf = defaultMaxBufferSize
	}
	rlMax := cfg.RateLimitMax
	if rlMax <= 0 {
		rlMax = defaultRateLimitMax
	}
	rlWindow := cfg.RateLimitWindow
	if rlWindow <= 0 {
		rlWindow = defaultRateLimitWindow
	}

	srv := &Server{
		disp:          cfg.Dispatcher,
		maxBufferSize: maxBuf,
		rl:            newRateLimiter(rlMax, rlWindow),
		up: &websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if cfg.Logger != nil {
		srv.logger = cfg.Logger.With().Str("component", "ws-server").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.serveWS)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error, 1)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !srv.rl.Allow(remoteHost(r.RemoteAddr)) {
		// spec.md §5: exceeded rate limit is a TCP-level reject, no envelope.
		// Falls back to a bare 429 if the connection cannot be hijacked.
		if hj, ok := w.(http.Hijacker); ok {
			if raw, _, err := hj.Hijack(); err == nil {
				_ = raw.Close()
				return
			}
		}
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	wsConn, err := srv.up.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	wsConn.SetReadLimit(srv.maxBufferSize)

	c := newConn()
	session := srv.disp.NewSession(c)

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		srv.writePump(wsConn, c)
	}()
	go func() {
		defer wg.Done()
		srv.readPump(wsConn, c, session)
	}()
	wg.Wait()
}

func (srv *Server) readPump(wsConn *websocket.Conn, c *conn, session interface{ HandleFrame([]byte); HandleClose() }) {
	defer func() {
		session.HandleClose()
		_ = c.Close()
		_ = wsConn.Close()
	}()

	_ = wsConn.SetReadDeadline(time.Now().Add(defaultPongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				srv.logger.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		session.HandleFrame(data)
	}
}

func (srv *Server) writePump(wsConn *websocket.Conn, c *conn) {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		_ = wsConn.Close()
	}()

	for {
		select {
		case <-c.doneCh:
			_ = wsConn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			_ = wsConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			_ = wsConn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := wsConn.WriteMessage(websocket.TextMessage, data); err != nil {
				srv.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = wsConn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remoteHost strips the ephemeral source port from a RemoteAddr so the
// rate limiter keys on the client's address rather than a value that is
// different on every single connection attempt.
func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
