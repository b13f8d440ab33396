// Command robot is one member of the robot ring: it circulates
// per-flavor resource tokens, elects a leader with Chang-Roberts when
// one dies, and, as leader, dispatches and tracks every order the
// screen ring sends it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/lucas-128/heladeria-concurrente/common/config"
	"github.com/lucas-128/heladeria-concurrente/common/logging"
	"github.com/lucas-128/heladeria-concurrente/common/metrics"
)

func main() {
	id := config.GetEnvInt("ROBOT_ID", 0)
	networkSize := config.GetEnvInt("ROBOT_NETWORK_SIZE", 3)
	if len(os.Args) > 2 {
		argID, errID := strconv.Atoi(os.Args[1])
		argSize, errSize := strconv.Atoi(os.Args[2])
		if errID != nil || errSize != nil {
			fmt.Fprintln(os.Stderr, "usage: robot <id> <ring_size>")
			os.Exit(1)
		}
		id, networkSize = argID, argSize
	}
	metricsAddr := config.GetEnv("ROBOT_METRICS_ADDR", fmt.Sprintf("127.0.0.1:%d", 10100+id))

	log := logging.NewZapLogger("robot", id)
	defer log.Sync()

	m := metrics.New("robot")

	go func() {
		log.Info("serving metrics", zap.String("addr", metricsAddr))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
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

	r := NewRobot(log, m, id, networkSize)
	if err := r.Start(ctx); err != nil {
		log.Error("robot stopped", zap.Error(err))
		os.Exit(1)
	}
}
