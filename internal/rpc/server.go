// Package rpc provides the JSON-RPC 2.0 surface of the swap daemon and
// the WebSocket stream of swap lifecycle updates.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lightbridge-exchange/lightbridge/internal/service"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// Server is a JSON-RPC 2.0 server.
type Server struct {
	service *service.Service
	log     *logging.Logger
	wsHub   *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer creates a new JSON-RPC server.
func NewServer(svc *service.Service) *Server {
	s := &Server{
		service:  svc,
		log:      logging.GetDefault().Component("rpc"),
		handlers: make(map[string]Handler),
	}

	s.registerHandlers()

	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// Service queries
	s.handlers["service_getInfo"] = s.getInfo
	s.handlers["service_getBalance"] = s.getBalance
	s.handlers["service_getPairs"] = s.getPairs
	s.handlers["service_getNodes"] = s.getNodes
	s.handlers["service_getTimeouts"] = s.getTimeouts
	s.handlers["service_getContracts"] = s.getContracts
	s.handlers["service_getRoutingHints"] = s.getRoutingHints
	s.handlers["service_getFeeEstimation"] = s.getFeeEstimation

	// Chain passthrough
	s.handlers["chain_getTransaction"] = s.getTransaction
	s.handlers["chain_broadcastTransaction"] = s.broadcastTransaction

	// Wallet methods
	s.handlers["wallet_deriveKeys"] = s.deriveKeys
	s.handlers["wallet_getAddress"] = s.getAddress
	s.handlers["wallet_sendCoins"] = s.sendCoins

	// Swap methods
	s.handlers["swap_create"] = s.createSwap
	s.handlers["swap_setInvoice"] = s.setSwapInvoice
	s.handlers["swap_createWithInvoice"] = s.createSwapWithInvoice
	s.handlers["swap_createReverse"] = s.createReverseSwap
	s.handlers["swap_getTransaction"] = s.getSwapTransaction
	s.handlers["swap_getRates"] = s.getSwapRates

	// Admin methods
	s.handlers["admin_addReferral"] = s.addReferral
	s.handlers["admin_setReverseSwaps"] = s.setReverseSwaps
	s.handlers["admin_setPrepayMinerFee"] = s.setPrepayMinerFee
	s.handlers["admin_updateTimeout"] = s.updateTimeout
}

// Start starts the RPC server and the WebSocket update stream.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.wsHub = NewWSHub()
	go s.wsHub.Run()
	s.wsHub.StreamUpdates(s.service.Hub())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/", s.handleWS)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	if s.wsHub != nil {
		s.wsHub.Stop()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, InternalError, err.Error(), errorData(err))
		return
	}

	s.writeResult(w, req.ID, result)
}

// errorData extracts structured error details for the response.
func errorData(err error) interface{} {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return map[string]interface{}{"code": int(svcErr.Code)}
	}

	var refundErr *service.PrematureRefundError
	if errors.As(err, &refundErr) {
		return refundErr
	}

	return nil
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
