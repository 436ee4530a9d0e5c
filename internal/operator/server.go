package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/roman-kulish/altitude-hold/internal/control"
	"github.com/roman-kulish/altitude-hold/internal/flight"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	maxBodySize  = 1 << 10
)

// Flight is the running flight as seen by the operator
type Flight interface {
	Status() flight.Status
	Parameters() *control.Parameters
	Abort()
}

// ParameterUpdate is the body of a setpoint or gain update
type ParameterUpdate struct {
	Value *float64 `json:"value"`
}

// ParametersView is the current tuning together with the accepted upper bounds
type ParametersView struct {
	control.ControlParameters
	Limits control.ControlParameters `json:"limits"`
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "operator"))
	}
}

// WithVerifier enables bearer token authentication
func WithVerifier(v *Verifier) func(*Server) {
	return func(s *Server) {
		s.verifier = v
	}
}

// Server is the operator HTTP API
type Server struct {
	flight     Flight
	verifier   *Verifier
	httpServer *http.Server
	startTime  time.Time

	logger *slog.Logger
}

// NewServer creates an operator API for the flight
func NewServer(f Flight, options ...func(*Server)) *Server {
	s := Server{
		flight:    f,
		startTime: time.Now(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/parameters", requireScope(s.verifier, ScopeRead, s.handleParameters))
	mux.HandleFunc("PUT /api/v1/parameters/setpoint", requireScope(s.verifier, ScopeControl, s.handleUpdate("setpoint", s.flight.Parameters().SetSetpoint)))
	mux.HandleFunc("PUT /api/v1/parameters/gain", requireScope(s.verifier, ScopeControl, s.handleUpdate("gain", s.flight.Parameters().SetGain)))
	mux.HandleFunc("POST /api/v1/abort", requireScope(s.verifier, ScopeControl, s.handleAbort))

	return mux
}

// Serve accepts connections on l until Stop is called
func (s *Server) Serve(l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	s.logger.Info("operator API listening", slog.String("address", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving operator API: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("stopping operator API: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
		"flight": s.flight.Status(),
	})
}

func (s *Server) handleParameters(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, s.parametersView())
}

func (s *Server) handleUpdate(name string, set func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update ParameterUpdate
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&update); err != nil || update.Value == nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, `Expected a JSON body {"value": <number>}`)
			return
		}

		if err := set(*update.Value); err != nil {
			s.logger.Warn(fmt.Sprintf("rejected %s update: %s", name, err.Error()))
			if errors.Is(err, control.ErrParameterRejected) {
				writeError(w, http.StatusUnprocessableEntity, codeRejected, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}

		s.logger.Info(fmt.Sprintf("%s updated", name), slog.Float64("value", *update.Value), subject(r))
		writeSuccess(w, http.StatusOK, s.parametersView())
	}
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("operator abort", subject(r))
	s.flight.Abort()
	writeSuccess(w, http.StatusAccepted, s.flight.Status())
}

func (s *Server) parametersView() ParametersView {
	p := s.flight.Parameters()
	return ParametersView{ControlParameters: p.Snapshot(), Limits: p.Limits()}
}

func subject(r *http.Request) slog.Attr {
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return slog.String("subject", claims.Subject)
	}
	return slog.String("subject", "anonymous")
}
