// Package server hosts the N1X room process: the WebSocket room transport,
// key validation and decrypt endpoints, and a gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/n1x/internal/platform/otel"
	"github.com/louisbranch/n1x/internal/platform/timeouts"
	"github.com/louisbranch/n1x/internal/services/n1x/decrypt"
	"github.com/louisbranch/n1x/internal/services/n1x/f010"
	"github.com/louisbranch/n1x/internal/services/n1x/narrative"
	"github.com/louisbranch/n1x/internal/services/n1x/storage"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/net/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// healthService is the gRPC health name reported for the room transport.
const healthService = "n1x.rooms"

// Config defines listen addresses and timeouts.
type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	NarrativeTimeout  time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Dependencies are the collaborators the server drives.
type Dependencies struct {
	Store     storage.RoomStore
	Generator narrative.Generator
	Keys      *f010.KeyCache
	// StrictKeys disables the shape-only key fallback.
	StrictKeys bool
}

// Server hosts the N1X HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	grpcAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	hub             *hub
	cancel          context.CancelFunc
}

// NewHandler builds the HTTP routes over deps. The returned stop function
// cancels and waits for in-flight narrative calls.
func NewHandler(deps Dependencies, narrativeTimeout time.Duration) (http.Handler, func()) {
	base, cancel := context.WithCancel(context.Background())
	h := newHub(base, deps, narrativeTimeout)
	return h.routes(deps.StrictKeys), func() {
		cancel()
		h.narrator.wait()
	}
}

func newHub(base context.Context, deps Dependencies, narrativeTimeout time.Duration) *hub {
	if narrativeTimeout <= 0 {
		narrativeTimeout = timeouts.Narrative
	}
	keys := deps.Keys
	if keys == nil {
		keys = f010.NewKeyCache(f010.DefaultTTL)
	}
	tracer := otel.Tracer("n1x/app")
	var n *narrator
	if deps.Generator != nil {
		n = newNarrator(base, narrative.WithTimeout(deps.Generator, narrativeTimeout), tracer)
	}
	return &hub{
		rooms:    make(map[string]*roomActor),
		store:    deps.Store,
		keys:     keys,
		narrator: n,
		tracer:   tracer,
		now:      time.Now,

		storageTimeout: timeouts.Storage,
	}
}

func (h *hub) routes(strictKeys bool) http.Handler {
	validator := f010.Validator{Rooms: h, Cache: h.keys, Strict: strictKeys}
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	wsHandler := websocket.Handler(h.handleWSConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	mux.Handle(decrypt.ValidatePath, validateHandler(validator))
	mux.Handle("/api/decrypt", decryptHandler(decrypt.Surface{Keys: validator}))
	return mux
}

// NewServer builds a configured server.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	base, cancel := context.WithCancel(context.Background())
	h := newHub(base, deps, config.NarrativeTimeout)
	return &Server{
		httpAddr:        httpAddr,
		grpcAddr:        strings.TrimSpace(config.GRPCAddr),
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           h.routes(deps.StrictKeys),
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		hub:    h,
		cancel: cancel,
	}, nil
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, config Config, deps Dependencies) error {
	server, err := NewServer(config, deps)
	if err != nil {
		return fmt.Errorf("init n1x server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve n1x: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, and the gRPC health server when an
// address is configured, until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("n1x server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if s.grpcAddr != "" {
		stop, err := s.serveHealth()
		if err != nil {
			return err
		}
		defer stop()
	}

	serveErr := make(chan error, 1)
	log.Printf("n1x server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) serveHealth() (func(), error) {
	listener, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on grpc addr %s: %w", s.grpcAddr, err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	log.Printf("n1x health listening at %v", listener.Addr())
	return func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}, nil
}

// Close stops narrative calls and waits for them.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.narrator.wait()
}
