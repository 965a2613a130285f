// Package api is the gateway: it translates REST calls into engine
// requests submitted through the router and turns engine replies and
// errors into transport-appropriate responses. It holds no trading state.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"matchbook/pkg/exchange/engine"
	"matchbook/pkg/exchange/ledger"
	"matchbook/pkg/exchange/market"
	"matchbook/pkg/exchange/orderbook"
	"matchbook/pkg/router"
	"matchbook/pkg/storage"
)

// Server handles REST and WebSocket connections.
type Server struct {
	bus     *router.Router
	led     *ledger.Ledger
	archive *storage.TradeArchive
	mux     *mux.Router
	hub     *Hub
	origins []string
	log     *zap.Logger
}

func NewServer(bus *router.Router, led *ledger.Ledger, archive *storage.TradeArchive, origins []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		bus:     bus,
		led:     led,
		archive: archive,
		mux:     mux.NewRouter(),
		hub:     NewHub(log),
		origins: origins,
		log:     log,
	}
	s.setupRoutes()
	return s
}

// Hub exposes the websocket hub so the event dispatcher can broadcast.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/order", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/order", s.handleCancelOrder).Methods("DELETE")
	api.HandleFunc("/order/open", s.handleOpenOrders).Methods("GET")
	api.HandleFunc("/depth", s.handleDepth).Methods("GET")
	api.HandleFunc("/trades", s.handleTrades).Methods("GET")
	api.HandleFunc("/balance", s.handleBalances).Methods("GET")

	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and blocks serving HTTP.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	s.log.Info("gateway listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.mux))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body", err.Error())
		return
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	reply, err := s.bus.Submit(r.Context(), engine.CreateOrder{
		Market: req.Market,
		Price:  req.Price,
		Qty:    req.Quantity,
		Side:   side,
		Owner:  req.UserID,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	placed := reply.(engine.OrderPlaced)
	fills := placed.Fills
	if fills == nil {
		fills = []orderbook.Fill{}
	}
	respondJSON(w, OrderPlacedResponse{
		Type:     "ORDER_PLACED",
		OrderID:  placed.OrderID,
		Executed: placed.ExecutedQty,
		Fills:    fills,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body", err.Error())
		return
	}

	reply, err := s.bus.Submit(r.Context(), engine.CancelOrder{
		Market:  req.Market,
		OrderID: req.OrderID,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	cancelled := reply.(engine.OrderCancelled)
	respondJSON(w, OrderCancelledResponse{
		Type:      "ORDER_CANCELLED",
		OrderID:   cancelled.OrderID,
		Executed:  cancelled.ExecutedQty,
		Remaining: cancelled.RemainingQty,
	})
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	mkt := r.URL.Query().Get("market")
	if userID == "" || mkt == "" {
		respondError(w, http.StatusBadRequest, "validation error", "userId and market are required")
		return
	}

	reply, err := s.bus.Submit(r.Context(), engine.GetOpenOrders{Market: mkt, Owner: userID})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	open := reply.(engine.OpenOrders)
	orders := open.Orders
	if orders == nil {
		orders = []orderbook.Order{}
	}
	respondJSON(w, OpenOrdersResponse{Type: "OPEN_ORDERS", Orders: orders})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	mkt := r.URL.Query().Get("market")
	if mkt == "" {
		respondError(w, http.StatusBadRequest, "validation error", "market is required")
		return
	}

	reply, err := s.bus.Submit(r.Context(), engine.GetDepth{Market: mkt})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	depth := reply.(engine.Depth)
	bids, asks := depth.Bids, depth.Asks
	if bids == nil {
		bids = []orderbook.Level{}
	}
	if asks == nil {
		asks = []orderbook.Level{}
	}
	respondJSON(w, DepthResponse{
		Market:          mkt,
		Bids:            bids,
		Asks:            asks,
		LastTradedPrice: depth.LastTradedPrice,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	mkt := r.URL.Query().Get("market")
	if mkt == "" {
		respondError(w, http.StatusBadRequest, "validation error", "market is required")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "validation error", "limit must be in [1,1000]")
			return
		}
		limit = n
	}

	trades, err := s.archive.RecentTrades(mkt, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trade archive error", err.Error())
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "validation error", "userId is required")
		return
	}
	respondJSON(w, BalancesResponse{UserID: userID, Balances: s.led.Balances(userID)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok", "ts": time.Now().UnixMilli()})
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses.
// A timeout surfaces distinctly from business errors.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation error", err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		respondError(w, http.StatusBadRequest, "insufficient funds", err.Error())
	case errors.Is(err, market.ErrMarketNotFound):
		respondError(w, http.StatusNotFound, "market not found", err.Error())
	case errors.Is(err, orderbook.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, router.ErrRequestTimeout):
		respondError(w, http.StatusGatewayTimeout, "request timeout", err.Error())
	case errors.Is(err, ledger.ErrInvariantViolation):
		s.log.Error("invariant violation surfaced to gateway", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error", "")
	default:
		s.log.Error("unclassified engine error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

func respondError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Details: details})
}
