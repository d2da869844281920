package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/batch"
	"github.com/raaihank/pii-masker/internal/config"
	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/privacy"
	"github.com/raaihank/pii-masker/internal/recorder"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input file (CSV, Parquet, or JSON lines)")
		outputFile = flag.String("output", "", "Output file (default: <input>.masked.<ext>)")
		batchSize  = flag.Int("batch-size", 0, "Records per batch (default from config)")
		dryRun     = flag.Bool("dry-run", false, "Mask and count without writing output")
		showStats  = flag.Bool("stats", false, "Print masking statistics of the stats backend after the run")
		resetStats = flag.Bool("reset-stats", false, "Clear the stats backend counters before the run")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -input customers.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input contacts.parquet -output /tmp/contacts.parquet -batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input events.jsonl -dry-run\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(recorder.LoggerConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if _, err := os.Stat(*inputFile); err != nil {
		log.Fatal("Input file not accessible", zap.String("input", *inputFile), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	rec, err := recorder.Open(cfg.Stats, log)
	if err != nil {
		log.Fatal("Failed to open stats backend", zap.Error(err))
	}
	defer rec.Close()

	if *resetStats {
		if err := recorder.Reset(ctx, rec); err != nil {
			log.Fatal("Failed to reset stats", zap.Error(err))
		}
		log.Info("Stats counters cleared", zap.String("backend", cfg.Stats.Backend))
	}

	masker, err := privacy.New(cfg.Privacy, rec, log.WithComponent("privacy"))
	if err != nil {
		log.Fatal("Failed to create masker", zap.Error(err))
	}

	batchConfig := &batch.Config{
		BatchSize:      cfg.Batch.BatchSize,
		ProgressReport: cfg.Batch.ProgressReport,
		DryRun:         cfg.Batch.DryRun || *dryRun,
	}
	if *batchSize > 0 {
		batchConfig.BatchSize = *batchSize
	}

	pipeline := batch.NewPipeline(masker, batchConfig, log)
	result, err := pipeline.ProcessFile(ctx, *inputFile, *outputFile)
	if err != nil {
		log.Fatal("Masking failed", zap.Error(err))
	}

	fmt.Printf("Records: %d  Failed: %d  Masked values: %d  Unchanged values: %d  Duration: %s\n",
		result.TotalRecords, result.Failed, result.MaskedValues, result.UnchangedValues, result.Duration)
	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", msg)
	}

	if *showStats {
		snap, err := rec.Snapshot(ctx)
		if err != nil {
			log.Fatal("Failed to read stats", zap.Error(err))
		}
		fmt.Printf("Total seen: %d  Total masked: %d\n", snap.Total, snap.Masked)
		for _, kind := range snap.Kinds() {
			counts := snap.ByKind[kind]
			fmt.Printf("  %-14s seen=%d masked=%d\n", kind, counts.Seen, counts.Masked)
		}
	}
}
