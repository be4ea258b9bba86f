// Package main provides a one-shot transfer reconstruction CLI.
// It runs a single query against the chain and prints the result,
// optionally persisting it to PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/orchestrator"
	"solana-transfer-lab/internal/search"
	"solana-transfer-lab/internal/solana"
	"solana-transfer-lab/internal/storage"
	"solana-transfer-lab/internal/storage/migrations"
	pgstore "solana-transfer-lab/internal/storage/postgres"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	searchEndpoint := flag.String("search-endpoint", os.Getenv("SEARCH_ENDPOINT"), "Transfer-index search API endpoint")
	searchAPIKey := flag.String("search-api-key", os.Getenv("SEARCH_API_KEY"), "Transfer-index search API key")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (optional, persists results)")
	mint := flag.String("mint", "", "Token mint address to query")
	account := flag.String("account", "", "Wallet address to scope the query to (optional)")
	lookback := flag.Duration("lookback", 10*time.Minute, "How far back to scan")
	asJSON := flag.Bool("json", false, "Print results as JSON instead of a table")
	stream := flag.Bool("stream", false, "Print batches as they are discovered instead of waiting for completion")
	flag.Parse()

	logger := log.New(os.Stderr, "[scan] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *searchEndpoint == "" {
		logger.Fatal("--search-endpoint is required")
	}
	if *mint == "" {
		logger.Fatal("--mint is required")
	}

	ctx := context.Background()

	var transferStore storage.TransferStore
	var progressStore storage.ProgressStore
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("run postgres migrations: %v", err)
		}
		transferStore = pgstore.NewTransferStore(pool)
		progressStore = pgstore.NewProgressStore(pool)
	}

	orch := orchestrator.New(orchestrator.Options{
		RPC:           solana.NewHTTPClient(*rpcEndpoint),
		Searcher:      search.NewClient(*searchEndpoint, search.WithAPIKey(*searchAPIKey)),
		TransferStore: transferStore,
		ProgressStore: progressStore,
		Logger:        logger,
	})

	q := domain.Query{
		Mint:            *mint,
		Account:         *account,
		LookbackSeconds: int64(lookback.Seconds()),
	}

	if *stream {
		total := 0
		err := orch.StreamTransfers(ctx, q, func(batch []domain.TransferRecord) {
			total += len(batch)
			printRecords(batch, *asJSON)
		})
		if err != nil {
			logger.Fatalf("stream failed: %v", err)
		}
		logger.Printf("done: %d transfers", total)
		return
	}

	records, err := orch.GetTransfers(ctx, q)
	if err != nil {
		logger.Fatalf("query failed: %v", err)
	}
	printRecords(records, *asJSON)
	logger.Printf("done: %d transfers", len(records))
}

func printRecords(records []domain.TransferRecord, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(records)
		return
	}
	for _, r := range records {
		ts := "unknown-time"
		if r.TimestampMs > 0 {
			ts = time.UnixMilli(r.TimestampMs).UTC().Format(time.RFC3339)
		}
		fmt.Printf("%s  %-8s  %s  %s -> %s  slot=%d  sig=%s\n",
			ts, r.Direction, r.Amount.String(), r.From, r.To, r.Slot, r.Signature)
	}
}
