package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"llamatalks-be/internal/bootstrap"
	"llamatalks-be/internal/config"
	"llamatalks-be/internal/entity"
	"llamatalks-be/pkg/database"

	"github.com/fatih/color"
	"gorm.io/gorm"
)

func main() {
	dir := flag.String("dir", "", "directory to ingest")
	flag.Parse()
	if *dir == "" && flag.NArg() > 0 {
		*dir = flag.Arg(0)
	}
	if *dir == "" {
		color.Red("usage: ingest -dir <directory>")
		os.Exit(2)
	}

	cfg := config.Load()

	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, true)
		if err != nil {
			color.Red("Failed to connect to database: %v", err)
			os.Exit(1)
		}
		gormDB = db
	} else {
		color.Yellow("DB_CONNECTION_STRING not set: chunks are kept in memory and lost on exit")
	}

	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		color.Red("Failed to build container: %v", err)
		os.Exit(1)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := container.ConsumerService.Consume(ctx); err != nil {
		color.Red("Failed to start consumer: %v", err)
		os.Exit(1)
	}

	color.Cyan("🚀 Ingesting %s", *dir)
	handle, err := container.IngestionService.Ingest(ctx, *dir)
	if err != nil {
		color.Red("Rejected: %v", err)
		os.Exit(1)
	}

	if err := handle.Wait(ctx); err != nil && ctx.Err() != nil {
		handle.Cancel()
		<-handle.Done()
	}

	batch, err := container.IngestionService.GetBatch(context.Background(), handle.BatchId)
	if err != nil {
		color.Red("Failed to read batch %s: %v", handle.BatchId, err)
		os.Exit(1)
	}

	color.White("Batch %s", batch.BatchId)
	for _, f := range batch.FilesIngested {
		color.Green("  + %s", f)
	}
	for _, f := range batch.FilesSkipped {
		color.Yellow("  = %s (already ingested)", f)
	}
	for _, f := range batch.FilesFailed {
		color.Red("  ! %s", f)
	}
	color.White("%d chunks stored", batch.ChunksStored)

	switch entity.BatchStatus(batch.Status) {
	case entity.BatchStatusCompleted:
		color.Green("✅ %s", batch.Status)
	case entity.BatchStatusCancelled:
		color.Yellow("⏹ %s", batch.Status)
		os.Exit(130)
	default:
		color.Red("❌ %s: %s", batch.Status, batch.Error)
		os.Exit(1)
	}
}
