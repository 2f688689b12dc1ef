// Command partitionctl operates on the monthly audit partitions:
//
//	partitionctl status                  list partitions with bounds and size
//	partitionctl ensure  [-months N]     pre-create partitions N months ahead
//	partitionctl retention [-days N]     drop partitions past the horizon
//
// Connection settings come from the standard configuration sources.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/storage/postgres"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	ensureFlags := flag.NewFlagSet("ensure", flag.ExitOnError)
	monthsAhead := ensureFlags.Int("months", 1, "months of partitions to pre-create")

	retentionFlags := flag.NewFlagSet("retention", flag.ExitOnError)
	retentionDays := retentionFlags.Int("days", 0, "retention horizon in days (0 = use configured value)")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logg := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := postgres.NewStore(ctx, cfg.Database, logg)
	if err != nil {
		logg.Fatal("Failed to connect to PostgreSQL", "error", err)
	}
	defer store.Close()

	audit := postgres.NewAuditRepo(store)

	switch command {
	case "status":
		partitions, err := audit.ListPartitions(ctx)
		if err != nil {
			logg.Fatal("Failed to list partitions", "error", err)
		}
		if len(partitions) == 0 {
			fmt.Println("no audit partitions exist")
			return
		}
		fmt.Printf("%-28s %-12s %-12s %12s\n", "PARTITION", "FROM", "TO", "BYTES")
		for _, p := range partitions {
			fmt.Printf("%-28s %-12s %-12s %12d\n",
				p.Name, p.From.Format("2006-01-02"), p.To.Format("2006-01-02"), p.Bytes)
		}

	case "ensure":
		_ = ensureFlags.Parse(os.Args[2:])
		if err := audit.EnsurePartitions(ctx, *monthsAhead); err != nil {
			logg.Fatal("Failed to ensure partitions", "error", err)
		}
		fmt.Printf("partitions ensured through %d month(s) ahead\n", *monthsAhead)

	case "retention":
		_ = retentionFlags.Parse(os.Args[2:])
		days := *retentionDays
		if days <= 0 {
			days = cfg.Audit.RetentionDays
		}
		if days <= 0 {
			logg.Fatal("No retention horizon; pass -days or set audit.retentionDays")
		}
		dropped, err := audit.DropExpiredPartitions(ctx, days)
		if err != nil {
			logg.Fatal("Retention run failed", "error", err)
		}
		if len(dropped) == 0 {
			fmt.Printf("nothing to drop; horizon %d days\n", days)
			return
		}
		for _, name := range dropped {
			fmt.Printf("dropped %s\n", name)
		}

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: partitionctl <status|ensure|retention> [flags]")
}
