package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/auth"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/chain"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/service"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// Handler contains HTTP request handlers
type Handler struct {
	vaultService *service.VaultService
	resolver     *auth.Resolver
	log          zerolog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(vaultService *service.VaultService, resolver *auth.Resolver, log zerolog.Logger) *Handler {
	return &Handler{
		vaultService: vaultService,
		resolver:     resolver,
		log:          log,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	// Read-only API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/brands/{owner}", h.GetBrand).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/rating", h.GetRating).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/reviews/{reviewer}", h.GetReview).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}", h.GetAuction).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/bid", h.GetAuctionBid).Methods(http.MethodGet)
	api.HandleFunc("/chain/height", h.GetHeight).Methods(http.MethodGet)
	api.HandleFunc("/balances/{principal}", h.GetBalance).Methods(http.MethodGet)

	// Transactions need a caller
	tx := api.Methods(http.MethodPost).Subrouter()
	tx.Use(h.resolver.Middleware)
	tx.HandleFunc("/brands", h.RegisterBrand)
	tx.HandleFunc("/brands/{owner}/verify", h.VerifyBrand)
	tx.HandleFunc("/products", h.ListProduct)
	tx.HandleFunc("/products/{id}/purchase", h.PurchaseProduct)
	tx.HandleFunc("/products/{id}/reviews", h.AddReview)
	tx.HandleFunc("/auctions", h.CreateAuction)
	tx.HandleFunc("/auctions/{id}/bid", h.PlaceBid)
	tx.HandleFunc("/auctions/{id}/end", h.EndAuction)
	tx.HandleFunc("/chain/advance", h.Advance)

	// Middleware
	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "api-gateway",
		"height":  h.vaultService.Height(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// TxResponse is the outcome of a transaction as seen by HTTP clients.
type TxResponse struct {
	Success bool                `json:"success"`
	Height  uint64              `json:"height"`
	TxIndex int                 `json:"tx_index"`
	Value   any                 `json:"value,omitempty"`
	Code    string              `json:"code,omitempty"`
	Error   string              `json:"error,omitempty"`
	Events  []models.VaultEvent `json:"events,omitempty"`
}

// RegisterBrand registers a brand for the caller
func (h *Handler) RegisterBrand(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterBrandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.vaultService.RegisterBrand(r.Context(), caller(r), &req)
	h.respondReceipt(w, receipt, err, http.StatusCreated)
}

// VerifyBrand verifies the brand of {owner}
func (h *Handler) VerifyBrand(w http.ResponseWriter, r *http.Request) {
	owner, ok := principalVar(w, r, "owner")
	if !ok {
		return
	}
	receipt, err := h.vaultService.VerifyBrand(r.Context(), caller(r), owner)
	h.respondReceipt(w, receipt, err, http.StatusOK)
}

// GetBrand returns the brand of {owner}
func (h *Handler) GetBrand(w http.ResponseWriter, r *http.Request) {
	owner, ok := principalVar(w, r, "owner")
	if !ok {
		return
	}
	respondOption(w, h.vaultService.GetBrand(owner), "Brand not found")
}

// ListProduct lists a product for the caller
func (h *Handler) ListProduct(w http.ResponseWriter, r *http.Request) {
	var req models.ListProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.vaultService.ListProduct(r.Context(), caller(r), &req)
	h.respondReceipt(w, receipt, err, http.StatusCreated)
}

// GetProduct returns product {id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	respondOption(w, h.vaultService.GetProduct(id), "Product not found")
}

// PurchaseProduct buys product {id} for the caller
func (h *Handler) PurchaseProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.vaultService.PurchaseProduct(r.Context(), caller(r), id)
	h.respondReceipt(w, receipt, err, http.StatusOK)
}

// AddReview records the caller's review of product {id}
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	var req models.ReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.vaultService.AddReview(r.Context(), caller(r), id, &req)
	h.respondReceipt(w, receipt, err, http.StatusCreated)
}

// GetReview returns {reviewer}'s review of product {id}
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	reviewer, ok := principalVar(w, r, "reviewer")
	if !ok {
		return
	}
	respondOption(w, h.vaultService.GetReview(id, reviewer), "Review not found")
}

// GetRating returns the rating summary of product {id}
func (h *Handler) GetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.vaultService.GetReviewSummary(id))
}

// CreateAuction opens an auction for the caller
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAuctionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.vaultService.CreateAuction(r.Context(), caller(r), &req)
	h.respondReceipt(w, receipt, err, http.StatusCreated)
}

// GetAuction returns auction {id} with its status
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	auction, found := h.vaultService.GetAuction(id).Get()
	if !found {
		respondError(w, http.StatusNotFound, "Auction not found")
		return
	}
	respondJSON(w, http.StatusOK, struct {
		vault.Auction
		Status string `json:"status"`
	}{auction, auction.Status()})
}

// PlaceBid handles bid placement requests
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	var bidReq models.BidRequest
	if !decodeBody(w, r, &bidReq) {
		return
	}
	if bidReq.Amount == 0 {
		respondError(w, http.StatusBadRequest, "Bid amount must be positive")
		return
	}

	response, err := h.vaultService.PlaceBid(r.Context(), caller(r), id, &bidReq)
	if err != nil {
		h.log.Error().Err(err).Uint64("auction_id", id).Msg("place bid")
		respondError(w, submitStatus(err), "Failed to place bid")
		return
	}

	statusCode := http.StatusCreated
	if !response.Success {
		statusCode = vault.Code(response.Code).HTTPStatus()
	}
	respondJSON(w, statusCode, response)
}

// EndAuction closes auction {id}
func (h *Handler) EndAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.vaultService.EndAuction(r.Context(), caller(r), id)
	h.respondReceipt(w, receipt, err, http.StatusOK)
}

// GetAuctionBid returns the mirrored highest bid of auction {id}
func (h *Handler) GetAuctionBid(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	bid, found := h.vaultService.AuctionBid(r.Context(), id)
	if !found {
		respondError(w, http.StatusNotFound, "Auction not found")
		return
	}
	respondJSON(w, http.StatusOK, bid)
}

// GetHeight returns the current block height
func (h *Handler) GetHeight(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]uint64{"height": h.vaultService.Height()})
}

// GetBalance returns the token balance of {principal}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := principalVar(w, r, "principal")
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"principal": p,
		"balance":   h.vaultService.Balance(p),
	})
}

// Advance mines empty blocks up to the requested height (development only)
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req models.AdvanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	height, err := h.vaultService.Advance(r.Context(), req.Height)
	if errors.Is(err, service.ErrAdvanceDisabled) {
		respondError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint64("height", req.Height).Msg("advance chain")
		respondError(w, submitStatus(err), "Failed to advance chain")
		return
	}
	respondJSON(w, http.StatusOK, map[string]uint64{"height": height})
}

func (h *Handler) respondReceipt(w http.ResponseWriter, receipt chain.Receipt, err error, okStatus int) {
	if err != nil {
		h.log.Error().Err(err).Msg("submit transaction")
		respondError(w, submitStatus(err), "Failed to submit transaction")
		return
	}
	resp := TxResponse{
		Success: receipt.Result.OK,
		Height:  receipt.Height,
		TxIndex: receipt.TxIndex,
		Value:   receipt.Result.Value,
		Events:  receipt.Events,
	}
	status := okStatus
	if !receipt.Result.OK {
		resp.Code = string(receipt.Result.Err.Code)
		resp.Error = receipt.Result.Err.Message
		status = receipt.Result.Err.Code.HTTPStatus()
	}
	respondJSON(w, status, resp)
}

func submitStatus(err error) int {
	if errors.Is(err, chain.ErrHalted) || errors.Is(err, chain.ErrMinerStopped) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func caller(r *http.Request) vault.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func idVar(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func principalVar(w http.ResponseWriter, r *http.Request, name string) (vault.Principal, bool) {
	p := vault.Principal(mux.Vars(r)[name])
	if !p.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return "", false
	}
	return p, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func respondOption[T any](w http.ResponseWriter, o vault.Option[T], notFound string) {
	v, ok := o.Get()
	if !ok {
		respondError(w, http.StatusNotFound, notFound)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs all HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.log.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// corsMiddleware adds CORS headers (for development)
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.PrincipalHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
