// Package api serves the fleet dashboard's HTTP surface: a go-chi
// router wired directly to fleet.Supervisor, grounded in the pack's
// chi-based dashboard middleware stack (RequestID, RealIP, Recoverer,
// Timeout, request logging).
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/spotfleet/spotfleet/internal/botlog"
	"github.com/spotfleet/spotfleet/internal/exchange"
	"github.com/spotfleet/spotfleet/internal/fleet"
	"github.com/spotfleet/spotfleet/internal/models"
)

// Config constructs a Server.
type Config struct {
	Supervisor   *fleet.Supervisor
	Exchange     exchange.Client
	DataDir      string
	Logger       *logrus.Logger
	RequestTimeout time.Duration
}

// Server is the dashboard HTTP API.
type Server struct {
	cfg    Config
	router *chi.Mux
}

// New builds a Server with routes wired but no listener started.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{cfg: cfg, router: chi.NewRouter()}
	s.routes()
	return s
}

// Handler returns the http.Handler to mount under an *http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))

	s.router.Get("/api/overview", s.handleOverview)
	s.router.Post("/api/bots", s.handleCreateBot)
	s.router.Post("/api/bots/{id}/start", s.handleStartBot)
	s.router.Post("/api/bots/{id}/stop", s.handleStopBot)
	s.router.Post("/api/bots/{id}/edit", s.handleEditBot)
	s.router.Post("/api/bots/{id}/add-funds", s.handleAddFunds)
	s.router.Delete("/api/bots/{id}", s.handleDeleteBot)
	s.router.Get("/api/bots/{id}/logs", s.handleBotLogs)
	s.router.Get("/api/coin/{asset}", s.handleCoin)
	s.router.Post("/api/dashboard/restart", s.handleRestart)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.cfg.Logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("http request")
	})
}

// errorBody is the JSON shape returned for every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func botIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func statusForFleetErr(err error) (int, string) {
	switch {
	case errors.Is(err, fleet.ErrBotNotFound):
		return http.StatusNotFound, "bot_not_found"
	case errors.Is(err, fleet.ErrBotAlreadyRunning):
		return http.StatusConflict, "bot_already_running"
	case errors.Is(err, fleet.ErrBotNotRunning):
		return http.StatusConflict, "bot_not_running"
	case errors.Is(err, fleet.ErrSymbolLocked):
		return http.StatusConflict, "symbol_locked"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// overviewResponse is the dashboard landing payload: the registry
// state of every bot. It carries no positions, wallet balances,
// orphan list or per-asset rollup.
type overviewResponse struct {
	Bots []*models.Bot `json:"bots"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Supervisor.Snapshot()
	writeJSON(w, http.StatusOK, overviewResponse{Bots: snap.Bots})
}

type createBotRequest struct {
	Name                 string          `json:"name"`
	Symbol               string          `json:"symbol"`
	StrategyKind         string          `json:"strategy_kind"`
	AllocatedCapitalUSDT decimal.Decimal `json:"allocated_capital_usdt"`
	TradeAmountUSDT      decimal.Decimal `json:"trade_amount_usdt"`
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" || req.Symbol == "" || req.StrategyKind == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name, symbol and strategy_kind are required")
		return
	}

	bot, err := s.cfg.Supervisor.CreateBot(models.CreateBotSpec{
		Name:                 req.Name,
		Symbol:               req.Symbol,
		StrategyKind:         models.StrategyKind(req.StrategyKind),
		AllocatedCapitalUSDT: req.AllocatedCapitalUSDT,
		TradeAmountUSDT:      req.TradeAmountUSDT,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	id, err := botIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid bot id")
		return
	}
	if err := s.cfg.Supervisor.Start(id); err != nil {
		status, code := statusForFleetErr(err)
		writeError(w, status, code, err.Error())
		return
	}
	bot, _ := s.cfg.Supervisor.Bot(id)
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	id, err := botIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid bot id")
		return
	}
	if err := s.cfg.Supervisor.Stop(id); err != nil {
		status, code := statusForFleetErr(err)
		writeError(w, status, code, err.Error())
		return
	}
	bot, _ := s.cfg.Supervisor.Bot(id)
	writeJSON(w, http.StatusOK, bot)
}

type editBotRequest struct {
	Name                 *string          `json:"name"`
	StrategyKind         *string          `json:"strategy_kind"`
	AllocatedCapitalUSDT *decimal.Decimal `json:"allocated_capital_usdt"`
	TradeAmountUSDT      *decimal.Decimal `json:"trade_amount_usdt"`
}

func (s *Server) handleEditBot(w http.ResponseWriter, r *http.Request) {
	id, err := botIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid bot id")
		return
	}
	var req editBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	patch := models.EditBotPatch{
		Name:                 req.Name,
		AllocatedCapitalUSDT: req.AllocatedCapitalUSDT,
		TradeAmountUSDT:      req.TradeAmountUSDT,
	}
	if req.StrategyKind != nil {
		kind := models.StrategyKind(*req.StrategyKind)
		patch.StrategyKind = &kind
	}

	bot, err := s.cfg.Supervisor.Edit(id, patch)
	if err != nil {
		status, code := statusForFleetErr(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

type addFundsRequest struct {
	AmountUSDT decimal.Decimal `json:"amount_usdt"`
}

func (s *Server) handleAddFunds(w http.ResponseWriter, r *http.Request) {
	id, err := botIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid bot id")
		return
	}
	var req addFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if !req.AmountUSDT.IsPositive() {
		writeError(w, http.StatusBadRequest, "bad_request", "amount_usdt must be positive")
		return
	}

	bot, err := s.cfg.Supervisor.AddFunds(id, req.AmountUSDT)
	if err != nil {
		status, code := statusForFleetErr(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	id, err := botIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid bot id")
		return
	}
	if err := s.cfg.Supervisor.Delete(id); err != nil {
		status, code := statusForFleetErr(err)
		writeError(w, status, code, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBotLogs(w http.ResponseWriter, r *http.Request) {
	id, err := botIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid bot id")
		return
	}
	if _, ok := s.cfg.Supervisor.Bot(id); !ok {
		writeError(w, http.StatusNotFound, "bot_not_found", fleet.ErrBotNotFound.Error())
		return
	}

	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, perr := strconv.Atoi(raw); perr == nil && parsed > 0 {
			n = parsed
		}
	}

	records, err := botlog.Tail(s.cfg.DataDir, id, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// coinResponse answers "what is happening with this asset right now":
// the bots trading <asset>USDT, taken from Supervisor.Snapshot, and
// the live price from the exchange. It carries no position data.
type coinResponse struct {
	Asset        string        `json:"asset"`
	Price        string        `json:"price,omitempty"`
	ManagingBots []*models.Bot `json:"managing_bots"`
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	symbol := asset + "USDT"

	snap := s.cfg.Supervisor.Snapshot()
	resp := coinResponse{Asset: asset}
	for _, b := range snap.Bots {
		if b.Symbol == symbol {
			resp.ManagingBots = append(resp.ManagingBots, b)
		}
	}

	if s.cfg.Exchange != nil {
		if price, err := s.cfg.Exchange.GetTickerPrice(r.Context(), symbol); err == nil {
			resp.Price = price.String()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRestart performs a clean shutdown of the supervisor then
// re-execs the current binary with its original arguments in place,
// relying on an external process supervisor to have restarted it if
// this process is ever killed outright instead.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.cfg.Logger.Warn("restart requested via dashboard API")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})

	go func() {
		time.Sleep(200 * time.Millisecond)
		s.cfg.Supervisor.Shutdown()

		exe, err := os.Executable()
		if err != nil {
			s.cfg.Logger.WithError(err).Error("restart: cannot resolve executable path")
			return
		}
		if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
			s.cfg.Logger.WithError(err).Error("restart: exec failed")
		}
	}()
}
