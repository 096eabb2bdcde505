// Package httpapi hosts the static HTTP surface spec.md §6 describes:
// health/config endpoints, the room pre-creation REST endpoint, and static
// asset serving. Grounded on the teacher's backend/server/http.Server
// (Config/Server shape, GenericResponse envelope, writeBytes,
// Run/graceful-shutdown), generalized from a single-purpose join endpoint
// to the full REST surface and routed with gorilla/mux instead of the
// teacher's bare ServeMux, since mux's path variables and method routing
// carry the rest of the pack's HTTP idiom (damione1-planning-poker, the
// other gorilla/mux users in the retrieval set).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/adwski/meetsignal/internal/registry"
)

const defaultShutdownDeadline = 10 * time.Second

var ErrUnexpected = errors.New("unexpected server error")

// IceServer mirrors the shape the GET /config endpoint assembles from
// configuration, one entry per configured TURN/STUN server.
type IceServer struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// GenericResponse is the JSON envelope every error response carries,
// matching the teacher's GenericResponse. Successful responses use their
// own response structs.
type GenericResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type healthResponse struct {
	TotalRooms        int    `json:"totalRooms"`
	TotalParticipants int    `json:"totalParticipants"`
	PeakParticipants  int64  `json:"peakParticipants"`
	Uptime            string `json:"uptime"`
	Version           string `json:"version"`
}

type configResponse struct {
	IceServers []IceServer `json:"iceServers"`
}

type createRoomRequest struct {
	RoomID          string `json:"roomId"`
	Password        string `json:"password"`
	MaxParticipants int    `json:"maxParticipants"`
}

type createRoomResponse struct {
	RoomID       string `json:"roomId"`
	CreatorToken string `json:"creatorToken"`
}

// Config bundles the server's constructor dependencies.
type Config struct {
	Logger     *zerolog.Logger
	Registry   *registry.Registry
	ListenAddr string
	StaticDir  string // optional; if set, served at "/"
	IceServers []IceServer
	Version    string
}

type Server struct {
	logger     zerolog.Logger
	reg        *registry.Registry
	iceServers []IceServer
	version    string
	startedAt  time.Time

	*http.Server
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		reg:        cfg.Registry,
		iceServers: cfg.IceServers,
		version:    cfg.Version,
		startedAt:  time.Now(),
	}
	if cfg.Logger != nil {
		srv.logger = cfg.Logger.With().Str("component", "api-server").Logger()
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/health", srv.health).Methods(http.MethodGet)
	r.HandleFunc("/config", srv.config).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", srv.createRoom).Methods(http.MethodPost)
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		w.Header().Set("Access-Control-Max-Age", "86400")
		next.ServeHTTP(w, r)
	})
}

func (srv *Server) health(w http.ResponseWriter, _ *http.Request) {
	stats := srv.reg.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		TotalRooms:        stats.TotalRooms,
		TotalParticipants: stats.TotalParticipants,
		PeakParticipants:  stats.PeakParticipants,
		Uptime:            time.Since(srv.startedAt).String(),
		Version:           srv.version,
	})
}

func (srv *Server) config(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{IceServers: srv.iceServers})
}

func (srv *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	body, _ := io.ReadAll(r.Body)
	defer func() { _ = r.Body.Close() }()

	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, GenericResponse{Error: "invalid request body"})
			return
		}
	}

	srv.logger.Trace().Any("request", req).Msg("got pre-create room request")

	res, err := srv.reg.PreCreateRoom(registry.PreCreateRoomRequest{
		RoomID:          req.RoomID,
		Password:        req.Password,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrLatentCapReached):
			writeJSON(w, http.StatusTooManyRequests, GenericResponse{Error: err.Error()})
		case errors.Is(err, registry.ErrRoomIDTaken):
			writeJSON(w, http.StatusConflict, GenericResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, GenericResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomID:       res.RoomID,
		CreatorToken: res.CreatorToken,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error, 1)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
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
