package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"CDPTreasury/internal/ingestion"
	"CDPTreasury/internal/observability"
	"CDPTreasury/internal/persistence"
	"CDPTreasury/internal/projection"
	"CDPTreasury/internal/query"
)

// Server hosts the gRPC endpoint (health + reflection) and the HTTP/JSON API.
// The JSON routes are registered directly on a gateway mux; typed proto
// services can be layered on once the API surface stabilizes.
type Server struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	deps          *Deps
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	DB            *sql.DB
	QueryService  *query.Service
	AdminIngest   *ingestion.AdminIngestService
	SnapshotMgr   *persistence.SnapshotManager
	HealthChecker *observability.HealthChecker
	StartTime     time.Time
}

func New(grpcAddr, httpAddr string, deps *Deps) *Server {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &Server{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		deps:          deps,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP/JSON API (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/pools", s.handleGetPools},
		{"GET", "/v1/collaterals/{currency}", s.handleGetCollateral},
		{"GET", "/v1/lots", s.handleListLots},
		{"GET", "/v1/balance", s.handleGetBalance},
		{"GET", "/v1/events", s.handleListEvents},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"GET", "/v1/admin/event-log", s.handleEventLogInfo},
		{"POST", "/v1/admin/extract-surplus", s.handleExtractSurplus},
		{"POST", "/v1/admin/auction-collateral", s.handleAuctionCollateral},
		{"POST", "/v1/admin/auction-size", s.handleAuctionSize},
		{"POST", "/v1/admin/rebuild-projections", s.handleRebuildProjections},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- Query handlers ---

func (s *Server) handleGetPools(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := s.deps.QueryService.GetPools(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCollateral(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	currency := pathParams["currency"]
	if currency == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("currency is required"))
		return
	}

	resp, err := s.deps.QueryService.GetCollateral(r.Context(), currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLots(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := s.deps.QueryService.ListOpenLots(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	account := r.URL.Query().Get("account")
	currency := r.URL.Query().Get("currency")
	if account == "" || currency == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("account and currency are required"))
		return
	}

	resp, err := s.deps.QueryService.GetBalance(r.Context(), account, currency)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		b, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid before cursor: %w", err))
			return
		}
		before = &b
	}

	records, err := s.deps.QueryService.ListEvents(r.Context(), limit, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

// --- Admin handlers ---

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEventLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence":  latestSeq,
		"uptime_seconds": int64(time.Since(s.deps.StartTime).Seconds()),
	})
}

func (s *Server) handleExtractSurplus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	requestID, err := s.deps.AdminIngest.InjectSurplusExtract(r.Context(), req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "request_id": requestID})
}

func (s *Server) handleAuctionCollateral(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Currency string `json:"currency"`
		Amount   int64  `json:"amount"`
		Target   int64  `json:"target"`
		Split    bool   `json:"split"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	requestID, err := s.deps.AdminIngest.InjectAuctionCollateral(r.Context(), req.Currency, req.Amount, req.Target, req.Split)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "request_id": requestID})
}

func (s *Server) handleAuctionSize(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Currency string `json:"currency"`
		Size     int64  `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	requestID, err := s.deps.AdminIngest.InjectAuctionSizeUpdate(r.Context(), req.Currency, req.Size)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "request_id": requestID})
}

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.Rebuild(r.Context(), s.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
