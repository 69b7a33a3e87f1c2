package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"llamatalks-be/internal/config"
	"llamatalks-be/pkg/events"
	pktNats "llamatalks-be/pkg/nats"

	"github.com/fatih/color"
)

func main() {
	pattern := flag.String("subject", ">", "subject pattern below the llamatalks prefix, e.g. ingestion.>")
	durable := flag.String("durable", "", "durable consumer name; empty only shows new events")
	flag.Parse()

	cfg := config.Load()

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		color.Red("Failed to connect to NATS: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = sub.Subscribe(ctx, *pattern, *durable, func(ctx context.Context, event events.Event) error {
		printEvent(event)
		return nil
	})
	if err != nil {
		color.Red("Failed to subscribe: %v", err)
		os.Exit(1)
	}

	color.Cyan("Listening on %s.%s (Ctrl+C to stop)", pktNats.SubjectPrefix, *pattern)
	<-ctx.Done()
}

func printEvent(event events.Event) {
	payload, _ := json.Marshal(event.Payload())
	line := event.Timestamp().Format("15:04:05") + " " + event.EventType() + " " + string(payload)

	switch {
	case strings.HasSuffix(event.EventType(), ".failed"):
		color.Red("%s", line)
	case strings.HasSuffix(event.EventType(), ".cancelled"), strings.HasSuffix(event.EventType(), ".deleted"):
		color.Yellow("%s", line)
	case strings.HasPrefix(event.EventType(), "ingestion."):
		color.Green("%s", line)
	default:
		color.White("%s", line)
	}
}
