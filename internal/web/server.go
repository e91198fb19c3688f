package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/synthcore/internal/collateral"
	"github.com/elys-network/synthcore/internal/debtpool"
	"github.com/elys-network/synthcore/internal/engine"
	"github.com/elys-network/synthcore/internal/exchanger"
	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/state"
	"github.com/elys-network/synthcore/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests against the protocol engine.
type WebServer struct {
	router *mux.Router
	engine *engine.Engine
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(eng *engine.Engine, port string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		engine: eng,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Operations
	ops := api.PathPrefix("/operations").Subrouter()
	ops.HandleFunc("/deposit", ws.handleDeposit).Methods("POST")
	ops.HandleFunc("/withdraw", ws.handleWithdraw).Methods("POST")
	ops.HandleFunc("/mint", ws.handleMint).Methods("POST")
	ops.HandleFunc("/burn", ws.handleBurn).Methods("POST")
	ops.HandleFunc("/exchange", ws.handleExchange).Methods("POST")
	ops.HandleFunc("/liquidate", ws.handleLiquidate).Methods("POST")
	ops.HandleFunc("/claim-rewards", ws.handleClaimRewards).Methods("POST")

	// Queries
	api.HandleFunc("/positions/{user}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/positions/{user}/history", ws.handleGetPositionHistory).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/receipts/user/{user}", ws.handleGetUserReceipts).Methods("GET")
	api.HandleFunc("/assets", ws.handleGetAssets).Methods("GET")
	api.HandleFunc("/prices", ws.handleGetPrices).Methods("GET")
	api.HandleFunc("/risk-parameters", ws.handleGetRiskParameters).Methods("GET")
	api.HandleFunc("/protocol/summary", ws.handleGetProtocolSummary).Methods("GET")
	api.HandleFunc("/protocol/metrics", ws.handleGetOperationMetrics).Methods("GET")
	api.HandleFunc("/protocol/unhealthy", ws.handleGetUnhealthyPositions).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// operationRequest is the shared body shape for state-changing endpoints.
type operationRequest struct {
	User      string `json:"user"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
	Target    string `json:"target,omitempty"` // liquidation target
	From      string `json:"from,omitempty"`   // exchange input denom
	To        string `json:"to,omitempty"`     // exchange output denom
	Mode      string `json:"mode,omitempty"`   // "exact_input" (default) or "exact_output"
}

func (ws *WebServer) decodeOperation(w http.ResponseWriter, r *http.Request) (*operationRequest, bool) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	if req.User == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'user' is required")
		return nil, false
	}
	return &req, true
}

func parseAmount(raw string) (sdkmath.Int, bool) {
	amount, ok := sdkmath.NewIntFromString(raw)
	if !ok || !amount.IsPositive() {
		return sdkmath.Int{}, false
	}
	return amount, true
}

// operationStatus maps engine errors onto HTTP status codes by failure kind.
func operationStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, collateral.ErrZeroAmount),
		errors.Is(err, collateral.ErrUnsupportedAsset),
		errors.Is(err, collateral.ErrUnsupportedSynthetic),
		errors.Is(err, exchanger.ErrZeroAmount),
		errors.Is(err, exchanger.ErrUnsupportedAsset),
		errors.Is(err, exchanger.ErrSameAsset):
		return http.StatusBadRequest
	case errors.Is(err, collateral.ErrInsufficientCollateral),
		errors.Is(err, collateral.ErrInsufficientBalance),
		errors.Is(err, collateral.ErrRiskyPosition),
		errors.Is(err, collateral.ErrHealthyPosition),
		errors.Is(err, collateral.ErrNoOutstandingDebt),
		errors.Is(err, debtpool.ErrUserNoDebt),
		errors.Is(err, debtpool.ErrNoRewardAccrued),
		errors.Is(err, debtpool.ErrInsufficientDebt):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeOperationResult(w http.ResponseWriter, err error, payload map[string]interface{}) {
	if err != nil {
		ws.writeErrorResponse(w, operationStatus(err), err.Error())
		return
	}
	payload["success"] = true
	payload["timestamp"] = time.Now().UTC()
	ws.writeJSONResponse(w, http.StatusOK, payload)
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'amount' must be a positive integer string")
		return
	}
	err := ws.engine.Deposit(req.User, types.AssetID(req.Asset), amount)
	ws.writeOperationResult(w, err, map[string]interface{}{
		"operation": types.OpDeposit,
		"user":      req.User,
		"asset":     req.Asset,
		"amount":    req.Amount,
	})
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'amount' must be a positive integer string")
		return
	}
	err := ws.engine.Withdraw(req.User, types.AssetID(req.Asset), amount)
	ws.writeOperationResult(w, err, map[string]interface{}{
		"operation": types.OpWithdraw,
		"user":      req.User,
		"asset":     req.Asset,
		"amount":    req.Amount,
	})
}

func (ws *WebServer) handleMint(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'amount' must be a positive integer string")
		return
	}
	err := ws.engine.Mint(req.User, types.AssetID(req.Asset), amount)
	ws.writeOperationResult(w, err, map[string]interface{}{
		"operation": types.OpMint,
		"user":      req.User,
		"asset":     req.Asset,
		"amount":    req.Amount,
	})
}

func (ws *WebServer) handleBurn(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'amount' must be a positive integer string")
		return
	}
	err := ws.engine.Burn(req.User, types.AssetID(req.Asset), amount)
	ws.writeOperationResult(w, err, map[string]interface{}{
		"operation": types.OpBurn,
		"user":      req.User,
		"asset":     req.Asset,
		"amount":    req.Amount,
	})
}

func (ws *WebServer) handleExchange(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'amount' must be a positive integer string")
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = req.User
	}

	var (
		executed sdkmath.Int
		err      error
		op       types.OperationType
	)
	switch req.Mode {
	case "", "exact_input":
		op = types.OpExchangeInput
		executed, err = ws.engine.ExchangeExactInput(req.User, types.AssetID(req.From), types.AssetID(req.To), amount, recipient)
	case "exact_output":
		op = types.OpExchangeOutput
		executed, err = ws.engine.ExchangeExactOutput(req.User, types.AssetID(req.From), types.AssetID(req.To), amount, recipient)
	default:
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'mode' must be 'exact_input' or 'exact_output'")
		return
	}

	payload := map[string]interface{}{
		"operation": op,
		"user":      req.User,
		"from":      req.From,
		"to":        req.To,
		"amount":    req.Amount,
		"recipient": recipient,
	}
	if err == nil {
		payload["executed"] = executed.String()
	}
	ws.writeOperationResult(w, err, payload)
}

func (ws *WebServer) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeOperation(w, r)
	if !ok {
		return
	}
	if req.Target == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'target' is required")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Field 'amount' must be a positive integer string")
		return
	}
	paid, err := ws.engine.Liquidate(req.User, req.Target, amount)
	payload := map[string]interface{}{
		"operation":  types.OpLiquidate,
		"liquidator": req.User,
		"target":     req.Target,
		"requested":  req.Amount,
	}
	if err == nil {
		payload["repaid_usd"] = paid.String()
	}
	ws.writeOperationResult(w, err, payload)
}

func (ws *WebServer) handleClaimRewards(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeOperation(w, r)
	if !ok {
		return
	}
	claimed, err := ws.engine.ClaimRewards(req.User)
	payload := map[string]interface{}{
		"operation": types.OpClaimRewards,
		"user":      req.User,
	}
	if err == nil {
		payload["claimed_usd"] = claimed.String()
	}
	ws.writeOperationResult(w, err, payload)
}

// handleGetPosition returns the live view of a user's position
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]

	position, err := ws.engine.GetPosition(user)
	if err != nil {
		webLogger.Error().Err(err).Str("user", user).Msg("Failed to assemble position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve position")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, position)
}

// handleGetPositionHistory returns persisted position snapshots for a user
func (ws *WebServer) handleGetPositionHistory(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	limit := queryLimit(r, 100)

	history, err := state.GetPositionHistory(user, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("user", user).Msg("Failed to get position history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve position history")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"user":    user,
		"history": history,
		"count":   len(history),
	})
}

// handleGetReceipts returns recent operation receipts
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20)

	receipts, err := state.GetRecentReceipts(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

// handleGetUserReceipts returns receipts touching a user as actor or counterparty
func (ws *WebServer) handleGetUserReceipts(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	limit := queryLimit(r, 20)

	receipts, err := state.GetReceiptsForUser(user, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("user", user).Msg("Failed to get user receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"user":     user,
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// handleGetAssets returns the supported collateral and synthetic registries
func (ws *WebServer) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"collateral": ws.engine.SupportedCollateral(),
		"synthetics": ws.engine.Synthetics(),
	})
}

// handleGetPrices returns the oracle's committed prices
func (ws *WebServer) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	prices := ws.engine.Prices()
	rendered := make(map[string]string, len(prices))
	for denom, price := range prices {
		rendered[denom.String()] = price.String()
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"prices":    rendered,
		"timestamp": time.Now().UTC(),
	})
}

// handleGetRiskParameters returns the active risk parameters
func (ws *WebServer) handleGetRiskParameters(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": ws.engine.RiskParameters(),
		"timestamp":  time.Now().UTC(),
	})
}

// handleGetProtocolSummary returns protocol summary statistics
func (ws *WebServer) handleGetProtocolSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetProtocolSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get protocol summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve protocol summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetOperationMetrics returns aggregated operation outcomes
func (ws *WebServer) handleGetOperationMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := state.GetOperationMetrics()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get operation metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operation metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

// handleGetUnhealthyPositions lists positions below the liquidation threshold
// as of their last snapshot
func (ws *WebServer) handleGetUnhealthyPositions(w http.ResponseWriter, r *http.Request) {
	threshold, _ := ws.engine.RiskParameters().LiquidationThreshold.Float64()
	limit := queryLimit(r, 50)

	positions, err := state.GetUnhealthyPositions(threshold, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get unhealthy positions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve unhealthy positions")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"threshold": threshold,
		"positions": positions,
		"count":     len(positions),
	})
}

// handleHealth returns comprehensive server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Get runtime memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	// Get database connection status
	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	// The engine is unusable when a registered synthetic has no price.
	engineHealthy := true
	totalDebt := "0"
	if total, err := ws.engine.TotalDebtUSD(); err != nil {
		engineHealthy = false
		hasErrors = true
	} else {
		totalDebt = total.String()
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "synthcore-protocol-engine",
			"version": "1.0.0",
		},
		"protocol_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"engine_healthy":   engineHealthy,
			"total_debt_usd":   totalDebt,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func queryLimit(r *http.Request, fallback int) int {
	limit := fallback
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
