// Package roomserver is a reference room server for the notes client. It
// accepts the client's intents over websocket, keeps notes in a Store and
// fans room broadcasts out through a Broker.
package roomserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"collabnotes/internal/config"
	"collabnotes/internal/discovery"
	"collabnotes/internal/session"
)

// WSPath is where agents connect.
const WSPath = "/ws"

// Server serves the websocket endpoint and a few HTTP helpers.
type Server struct {
	cfg    *config.Server
	hub    *Hub
	store  Store
	broker Broker
	router *mux.Router
	logger *slog.Logger
}

// New assembles a server around store and broker. It owns both and closes
// them when Run returns.
func New(cfg *config.Server, store Store, broker Broker, logger *slog.Logger) *Server {
	reg := prometheus.NewRegistry()
	hub := NewHub(store, broker, NewMetrics(reg), cfg.Transport, logger)
	s := &Server{
		cfg:    cfg,
		hub:    hub,
		store:  store,
		broker: broker,
		router: mux.NewRouter(),
		logger: logger,
	}
	s.router.HandleFunc(WSPath, hub.ServeWS)
	s.router.HandleFunc("/rooms/new", s.serveGenerateRoom).Methods(http.MethodPost, http.MethodGet)
	s.router.HandleFunc("/rooms/{room}/users", s.serveRoster).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Serve accepts connections on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.cfg.Discovery {
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			mdns, err := discovery.Register(s.cfg.Service, tcp.Port, WSPath, s.logger)
			if err != nil {
				s.logger.Warn("mDNS registration failed", "err", err)
			} else {
				defer mdns.Shutdown()
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		s.logger.Info("room server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	// Upgraded connections are hijacked and outlive Shutdown.
	s.hub.Close()
	s.close()
	return err
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("roomserver: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) close() {
	if err := s.broker.Close(); err != nil {
		s.logger.Warn("closing broker", "err", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", "err", err)
	}
}

type roomCodeResponse struct {
	Code string `json:"code"`
}

func (s *Server) serveGenerateRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roomCodeResponse{Code: session.GenerateRoomID()})
}

func (s *Server) serveRoster(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.hub.Roster(room))
}

// OpenStore picks the note store from the configuration: postgres when a
// database URL is set, bbolt when a file path is set, memory otherwise.
func OpenStore(ctx context.Context, cfg *config.Server, logger *slog.Logger) (Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		st, err := OpenPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to PostgreSQL")
		return st, nil
	case cfg.BoltPath != "":
		st, err := OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened bolt store", "path", cfg.BoltPath)
		return st, nil
	}
	logger.Info("keeping notes in memory")
	return NewMemoryStore(), nil
}

// OpenBroker picks redis when an address is set and the in-process broker
// otherwise.
func OpenBroker(ctx context.Context, cfg *config.Server, logger *slog.Logger) (Broker, error) {
	if cfg.RedisAddr != "" {
		return NewRedisBroker(ctx, cfg.RedisAddr, logger)
	}
	return NewLocalBroker(), nil
}
