package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/lucas-128/heladeria-concurrente/common/config"
	"github.com/lucas-128/heladeria-concurrente/common/logging"
	"github.com/lucas-128/heladeria-concurrente/common/metrics"
)

func main() {
	id := config.GetEnvInt("SCREEN_ID", 0)
	networkSize := config.GetEnvInt("SCREEN_NETWORK_SIZE", 3)
	gatewayAddr := config.GetEnv("GATEWAY_ADDRESS", "127.0.0.1:6000")
	ordersPath := config.GetEnv("SCREEN_ORDERS_FILE", "orders.json")
	if len(os.Args) > 3 {
		argID, errID := strconv.Atoi(os.Args[1])
		argSize, errSize := strconv.Atoi(os.Args[2])
		if errID != nil || errSize != nil {
			fmt.Fprintln(os.Stderr, "usage: screen <id> <ring_size> <orders.json>")
			os.Exit(1)
		}
		id, networkSize, ordersPath = argID, argSize, os.Args[3]
	}
	metricsAddr := config.GetEnv("SCREEN_METRICS_ADDR", fmt.Sprintf("127.0.0.1:%d", 3100+id))

	log := logging.NewSlogLogger("screen", id)
	m := metrics.New("screen")

	go func() {
		log.Info("serving metrics", slog.String("addr", metricsAddr))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		cancel()
	}()

	s := NewScreen(log, m, id, networkSize, ordersPath, gatewayAddr)
	if err := s.Start(ctx); err != nil {
		log.Error("screen stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
