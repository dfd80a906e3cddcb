// Package api serves the REST and WebSocket surface over a running
// node: bundle submission, balance and reward queries, and a
// settlement event feed.
package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/slipstream/pkg/bundle"
	"github.com/uhyunpark/slipstream/pkg/node"
	"github.com/uhyunpark/slipstream/pkg/position"
)

// maxBundleBytes bounds POST bodies; a u24 section length tops out at
// ~16 MiB per section anyway.
const maxBundleBytes = 1 << 26

type Server struct {
	node   *node.Node
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(n *node.Node, log *zap.SugaredLogger) *Server {
	s := &Server{
		node:   n,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	n.OnSettle = s.broadcastSettlement
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/bundles", s.handleSubmitBundle).Methods("POST")
	api.HandleFunc("/accounts/{address}/balances/{asset}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/positions/{key}/rewards", s.handleGetRewards).Methods("GET")
	api.HandleFunc("/pairs", s.handleGetPairs).Methods("GET")
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleSubmitBundle(w http.ResponseWriter, r *http.Request) {
	var req SubmitBundleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBundleBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	payload, err := hex.DecodeString(strings.TrimPrefix(req.Payload, "0x"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "payload is not hex", err.Error())
		return
	}

	receipt, err := s.node.ApplyBundle(payload)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, bundle.ErrTooManyOrders) {
			status = http.StatusRequestEntityTooLarge
		}
		respondError(w, status, "bundle rejected", err.Error())
		return
	}

	orders := make([]SettledInfo, len(receipt.Events))
	for i, ev := range receipt.Events {
		orders[i] = settledInfo(ev)
	}
	respondJSON(w, SubmitBundleResponse{
		Status: "committed",
		Round:  receipt.Round,
		Orders: orders,
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !common.IsHexAddress(vars["address"]) || !common.IsHexAddress(vars["asset"]) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	addr := common.HexToAddress(vars["address"])
	asset := common.HexToAddress(vars["asset"])

	respondJSON(w, BalanceInfo{
		Address:         addr.Hex(),
		Asset:           asset.Hex(),
		InternalBalance: s.node.InternalBalance(addr, asset).Dec(),
		PendingOutflow:  s.node.PendingOutflow(addr, asset).Dec(),
	})
}

func (s *Server) handleGetRewards(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(mux.Vars(r)["key"], "0x")
	keyBytes, err := hex.DecodeString(raw)
	if err != nil || len(keyBytes) != common.HashLength {
		respondError(w, http.StatusBadRequest, "invalid position key", "expected 32-byte hex")
		return
	}
	key := position.Key(common.BytesToHash(keyBytes))

	accrued, err := s.node.RewardBalance(key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reward lookup failed", err.Error())
		return
	}
	respondJSON(w, RewardInfo{
		PositionKey: common.Hash(key).Hex(),
		Accrued:     accrued.Dec(),
	})
}

func (s *Server) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	pairs := s.node.LastPairs()
	infos := make([]PairInfo, len(pairs))
	for i, p := range pairs {
		infos[i] = PairInfo{
			Asset0:      p.Asset0.Hex(),
			Asset1:      p.Asset1.Hex(),
			Price1Over0: p.Price1Over0.Dec(),
		}
	}
	respondJSON(w, infos)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, StatusInfo{
		Round:           s.node.Round(),
		DomainSeparator: s.node.DomainSeparator().Hex(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// broadcastSettlement fans a settled order out to the global channel
// and the signer's scoped channel.
func (s *Server) broadcastSettlement(ev bundle.Event) {
	update := SettlementUpdate{
		Type:  "settlement",
		Round: s.node.Round(),
		Order: settledInfo(ev),
	}
	s.hub.BroadcastToChannel("settlements", update)
	s.hub.BroadcastToChannel("settlements:"+strings.ToLower(ev.Signer.Hex()), update)
}

func settledInfo(ev bundle.Event) SettledInfo {
	return SettledInfo{
		Kind:      ev.Kind,
		Signer:    ev.Signer.Hex(),
		Recipient: ev.Recipient.Hex(),
		AssetIn:   ev.AssetIn.Hex(),
		AssetOut:  ev.AssetOut.Hex(),
		AmountIn:  ev.AmountIn.Dec(),
		AmountOut: ev.AmountOut.Dec(),
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
