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
	addr := config.GetEnv("GATEWAY_ADDRESS", "127.0.0.1:6000")
	metricsAddr := config.GetEnv("GATEWAY_METRICS_ADDR", "127.0.0.1:6100")
	logPath := config.GetEnv("GATEWAY_LOG_FILE", "gateway_transactions.log")
	rejectionPercentage := config.GetEnvInt("REJECTION_PERCENTAGE", 10)
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n < 0 || n > 100 {
			fmt.Fprintln(os.Stderr, "usage: gateway [rejection_percentage 0-100]")
			os.Exit(1)
		}
		rejectionPercentage = n
	}

	log := logging.NewSlogLogger("gateway", 0)
	m := metrics.New("gateway")

	txLog, err := OpenTransactionLog(logPath)
	if err != nil {
		log.Error("failed to open transaction log", slog.Any("error", err))
		os.Exit(1)
	}

	gw := NewGateway(log, m, rejectionPercentage, txLog)
	defer gw.Close()

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

	if err := gw.Serve(ctx, addr); err != nil {
		log.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
