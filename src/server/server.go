// Package server exposes the producer services over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"kafka-relay/src/broker"
	"kafka-relay/src/contracts"
	"kafka-relay/src/logger"
	"kafka-relay/src/producer"
)

const maxBodyBytes = 1 << 20

// PaymentSender validates a JSON payment and publishes the body as received.
type PaymentSender interface {
	SendPaymentJSON(ctx context.Context, body []byte) (broker.PublishResult, error)
}

// MessageSender publishes plain text messages.
type MessageSender interface {
	SendMessage(ctx context.Context, message string) (broker.PublishResult, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	// RateLimit is the number of publish requests accepted per second.
	// Zero disables the limiter.
	RateLimit float64
	Burst     int
}

// Server routes publish requests to the producer services. Either sender
// may be nil, in which case its route is not registered.
type Server struct {
	config   Config
	payments PaymentSender
	messages MessageSender
	limiter  *rate.Limiter
	logger   logger.Logger
	server   *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new HTTP server.
func New(cfg Config, payments PaymentSender, messages MessageSender, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		config:   cfg,
		payments: payments,
		messages: messages,
		logger:   log,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
			if burst < 1 {
				burst = 1
			}
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	if payments != nil {
		mux.HandleFunc("/payment", s.limit(s.handlePayment))
	}
	if messages != nil {
		mux.HandleFunc("/producer", s.limit(s.handleMessage))
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listener's network address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("[Server] Listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("[Server] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("[Server] Shutdown error: %v", err)
			return err
		}
		return nil
	}
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	res, err := s.payments.SendPaymentJSON(r.Context(), body)
	if err != nil {
		s.writePublishError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, publishResponse(res))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	res, err := s.messages.SendMessage(r.Context(), string(body))
	if err != nil {
		s.writePublishError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, publishResponse(res))
}

// writePublishError maps a send failure to a status. Invalid input is 400.
// A broker-side serialization rejection is also 400 even though it arrives
// wrapped in a ProducerError, since resending the same payload cannot
// succeed. Every other ProducerError is 503.
func (s *Server) writePublishError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contracts.ErrInvalidPayment), errors.Is(err, producer.ErrEmptyMessage):
		s.logger.Warn("[Server] Invalid request: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case broker.IsSerializationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case producer.IsUpstreamUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("[Server] Unexpected publish error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func publishResponse(res broker.PublishResult) map[string]any {
	return map[string]any{
		"status":    "published",
		"topic":     res.Topic,
		"partition": res.Partition,
		"offset":    res.Offset,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
