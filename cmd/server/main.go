// Package main provides the transfer query server:
// - GET /transfers: batch transfer reconstruction for a mint or account
// - GET /ws/transfers: the same query streamed as websocket batches
// - /metrics, /health
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/observability"
	"solana-transfer-lab/internal/orchestrator"
	"solana-transfer-lab/internal/search"
	"solana-transfer-lab/internal/solana"
	"solana-transfer-lab/internal/storage"
	chstore "solana-transfer-lab/internal/storage/clickhouse"
	"solana-transfer-lab/internal/storage/memory"
	"solana-transfer-lab/internal/storage/migrations"
	pgstore "solana-transfer-lab/internal/storage/postgres"
)

const defaultLookback = 10 * time.Minute

// Server wires the orchestrator to the HTTP and websocket surfaces.
type Server struct {
	orch     *orchestrator.Orchestrator
	archive  *chstore.TransferArchiveStore
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	searchEndpoint := flag.String("search-endpoint", os.Getenv("SEARCH_ENDPOINT"), "Transfer-index search API endpoint")
	searchAPIKey := flag.String("search-api-key", os.Getenv("SEARCH_API_KEY"), "Transfer-index search API key")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics archive)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flushThreshold := flag.Int("flush-threshold", orchestrator.DefaultFlushThreshold, "Streaming flush threshold in records")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *searchEndpoint == "" {
		logger.Fatal("--search-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transferStore, progressStore, archive, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	searcher := search.NewClient(*searchEndpoint, search.WithAPIKey(*searchAPIKey))

	server := &Server{
		orch: orchestrator.New(orchestrator.Options{
			RPC:            rpc,
			Searcher:       searcher,
			TransferStore:  transferStore,
			ProgressStore:  progressStore,
			FlushThreshold: *flushThreshold,
			Logger:         logger,
		}),
		archive: archive,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/transfers", server.handleTransfers)
	mux.HandleFunc("/ws/transfers", server.handleTransfersWS)

	httpServer := &http.Server{Addr: *addr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	logger.Printf("Listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores builds the persistence layer. ClickHouse is optional; when a
// DSN is given, reconstructed transfers are also archived there.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.TransferStore, storage.ProgressStore, *chstore.TransferArchiveStore, func(), error) {
	var (
		transferStore storage.TransferStore
		progressStore storage.ProgressStore
		cleanups      []func()
	)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if useMemory {
		transferStore = memory.NewTransferStore()
		progressStore = memory.NewProgressStore()
	} else {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		transferStore = pgstore.NewTransferStore(pool)
		progressStore = pgstore.NewProgressStore(pool)
	}

	var archive *chstore.TransferArchiveStore
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		archive = chstore.NewTransferArchiveStore(conn)
	}

	return transferStore, progressStore, archive, cleanup, nil
}

// parseQuery builds a transfer query from URL parameters:
// mint (required), account (optional), lookback (Go duration, default 10m).
func parseQuery(r *http.Request) (domain.Query, error) {
	mint := strings.TrimSpace(r.URL.Query().Get("mint"))
	if mint == "" {
		return domain.Query{}, fmt.Errorf("mint parameter is required")
	}

	lookback := defaultLookback
	if raw := r.URL.Query().Get("lookback"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return domain.Query{}, fmt.Errorf("invalid lookback %q", raw)
		}
		lookback = d
	}

	return domain.Query{
		Mint:            mint,
		Account:         strings.TrimSpace(r.URL.Query().Get("account")),
		LookbackSeconds: int64(lookback.Seconds()),
	}, nil
}

// TransfersResponse is the JSON body for GET /transfers.
type TransfersResponse struct {
	Mint      string                  `json:"mint"`
	Account   string                  `json:"account,omitempty"`
	Count     int                     `json:"count"`
	Transfers []domain.TransferRecord `json:"transfers"`
}

// handleTransfers runs a batch query and returns all transfers as JSON.
func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.orch.GetTransfers(r.Context(), q)
	if err != nil {
		s.logger.Printf("query failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.archiveBatch(r.Context(), records)

	resp := TransfersResponse{
		Mint:      q.Mint,
		Account:   q.Account,
		Count:     len(records),
		Transfers: records,
	}
	if resp.Transfers == nil {
		resp.Transfers = []domain.TransferRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// wsMessage is one websocket frame: a batch of transfers, or the final
// frame with done=true (carrying an error message if the stream failed).
type wsMessage struct {
	Transfers []domain.TransferRecord `json:"transfers,omitempty"`
	Done      bool                    `json:"done,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// handleTransfersWS streams query results over a websocket, one JSON
// message per flushed batch.
func (s *Server) handleTransfersWS(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	streamErr := s.orch.StreamTransfers(r.Context(), q, func(batch []domain.TransferRecord) {
		s.archiveBatch(r.Context(), batch)
		if err := conn.WriteJSON(wsMessage{Transfers: batch}); err != nil {
			s.logger.Printf("websocket write failed: %v", err)
		}
	})

	final := wsMessage{Done: true}
	if streamErr != nil {
		s.logger.Printf("stream failed: %v", streamErr)
		final.Error = streamErr.Error()
	}
	if err := conn.WriteJSON(final); err != nil {
		s.logger.Printf("websocket write failed: %v", err)
		return
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// archiveBatch mirrors reconstructed transfers into ClickHouse when
// configured. Archive failures are logged, never surfaced.
func (s *Server) archiveBatch(ctx context.Context, records []domain.TransferRecord) {
	if s.archive == nil || len(records) == 0 {
		return
	}
	ptrs := make([]*domain.TransferRecord, len(records))
	for i := range records {
		r := records[i]
		ptrs[i] = &r
	}
	if err := s.archive.InsertBatch(ctx, ptrs); err != nil {
		s.logger.Printf("archive insert failed: %v", err)
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
