// Command report prints the manager report: every unprocessed order with the
// restaurants able to cook it, nearest first.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/report -format text
//	SEED_FILE=data/seed.json go run ./cmd/report -format json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeshkovD/star-burger/internal/bootstrap"
	"github.com/MeshkovD/star-burger/internal/config"
	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/matching"
	"github.com/MeshkovD/star-burger/internal/observability"
	"github.com/jonboulle/clockwork"
)

func main() {
	format := flag.String("format", "text", "output format: text or json")
	flag.Parse()

	if *format != "text" && *format != "json" {
		flag.Usage()
		os.Exit(2)
	}

	if code := run(*format); code != 0 {
		os.Exit(code)
	}
}

func run(format string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	// Logs go to stderr so stdout carries only the report.
	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer closeStore()

	clock := clockwork.NewRealClock()
	resolver := domain.NewResolver(store, bootstrap.NewGeocoder(cfg, logger, metrics), clock, logger, metrics)
	svc := matching.New(store, domain.NewRanker(resolver, logger), nil, clock, logger, metrics)

	report, err := svc.Report(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build report: %v\n", err)
		return 1
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
			return 1
		}
		return 0
	}
	printText(os.Stdout, report)
	return 0
}

func printText(w io.Writer, report []matching.OrderReport) {
	if len(report) == 0 {
		fmt.Fprintln(w, "No unprocessed orders.")
		return
	}
	for i, row := range report {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Order #%d [%s] %s руб.\n", row.ID, row.Status, row.Cost.StringFixed(2))
		customer := row.Customer
		if row.Phonenumber != "" {
			customer += ", " + row.Phonenumber
		}
		fmt.Fprintf(w, "  Customer: %s\n", customer)
		fmt.Fprintf(w, "  Address:  %s\n", row.Address)
		if row.Comment != "" {
			fmt.Fprintf(w, "  Comment:  %s\n", row.Comment)
		}
		if len(row.Restaurants) == 0 {
			fmt.Fprintln(w, "  No restaurant can cook this order.")
			continue
		}
		fmt.Fprintln(w, "  Restaurants:")
		for _, r := range row.Restaurants {
			fmt.Fprintf(w, "    %s\n", r)
		}
	}
}
