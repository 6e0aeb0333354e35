// Package web provides the HTTP status page and operator endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/dispense"
	"github.com/sweeney/vendo/internal/journal"
	"github.com/sweeney/vendo/internal/status"
)

// SalesSource lists journalled dispense attempts, newest first.
type SalesSource interface {
	RecentSales(limit int) ([]journal.SaleRecord, error)
}

// Operator is the command surface exposed over HTTP.
type Operator interface {
	AddCredit(amount decimal.Decimal)
	Dispense(ctx context.Context, channel string) (dispense.Attempt, error)
	RequestShutdown(reason string)
}

// Server serves the status page and operator API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	op         Operator
	sales      SalesSource
	log        *zap.Logger
}

// New creates a Server that reads state from tracker and sends commands to op.
func New(addr string, tracker *status.Tracker, op Operator, log *zap.Logger) *Server {
	s := &Server{tracker: tracker, op: op, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Route("/api", func(r chi.Router) {
		r.Post("/credit", s.handleCredit)
		r.Post("/dispense/{channel}", s.handleDispense)
		r.Post("/shutdown", s.handleShutdown)
		r.Get("/sales", s.handleSales)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// WithSales enables GET /api/sales. Call before serving.
func (s *Server) WithSales(src SalesSource) *Server {
	s.sales = src
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// CreditRequest is the body of POST /api/credit.
type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AttemptResponse reports the result of POST /api/dispense/{channel}.
type AttemptResponse struct {
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel"`
	Outcome string `json:"outcome"`
	Forced  bool   `json:"forced,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	s.op.AddCredit(req.Amount)
	s.log.Info("credit added over http", zap.String("amount", req.Amount.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDispense(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	// A dropped connection must not abort a running dispense.
	a, err := s.op.Dispense(context.WithoutCancel(r.Context()), channel)

	resp := AttemptResponse{ID: a.ID, Channel: channel, Outcome: string(a.Outcome), Forced: a.Forced}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = statusFor(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("write dispense response", zap.Error(err))
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.op.RequestShutdown("http")
	w.WriteHeader(http.StatusAccepted)
}

// SaleResponse is one entry of GET /api/sales.
type SaleResponse struct {
	AttemptID string    `json:"attempt_id"`
	Channel   string    `json:"channel"`
	Cost      string    `json:"cost"`
	Outcome   string    `json:"outcome"`
	Forced    bool      `json:"forced,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

const maxSales = 100

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	if s.sales == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSales)
	}

	records, err := s.sales.RecentSales(limit)
	if err != nil {
		s.log.Warn("list sales", zap.Error(err))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]SaleResponse, len(records))
	for i, rec := range records {
		out[i] = SaleResponse{
			AttemptID: rec.AttemptID,
			Channel:   rec.Channel,
			Cost:      rec.Cost.String(),
			Outcome:   rec.Outcome,
			Forced:    rec.Forced,
			Start:     rec.Start,
			End:       rec.End,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Warn("write sales response", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dispense.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, dispense.ErrInsufficientCredit):
		return http.StatusPaymentRequired
	case errors.Is(err, dispense.ErrBusy),
		errors.Is(err, dispense.ErrChannelBlocked),
		errors.Is(err, dispense.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, dispense.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, dispense.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
