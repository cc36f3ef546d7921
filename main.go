package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lab1702/robo-arena/config"
	"github.com/lab1702/robo-arena/logging"
	"github.com/lab1702/robo-arena/server"
	"github.com/lab1702/robo-arena/storage"
	"github.com/lab1702/robo-arena/telemetry"
)

const recorderQueueSize = 64

func main() {
	configPath := flag.String("config", "", "Path to a JSON or YAML config file")
	port := flag.Int("port", 0, "Server port (overrides the config file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger, closeLogs, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	log := logging.Component(logger, "main")
	log.Info().Int("port", cfg.Server.Port).Str("name", cfg.Server.Name).Msg("Starting Robo Arena server")

	store, err := storage.Open(cfg.Storage, logging.Component(logger, "storage"))
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Cannot open result storage")
	}
	recorder := storage.NewRecorder(store, recorderQueueSize, logging.Component(logger, "recorder"))

	tel, err := telemetry.New(cfg.Influx, nil, logging.Component(logger, "telemetry"))
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot set up telemetry")
	}

	// Create game server
	opts := []server.Option{
		server.WithLogger(logging.Component(logger, "server")),
		server.WithRecorder(recorder),
		server.WithTurnObserver(tel),
	}
	// /api/matches answers 404 unless results are kept
	if storage.Persistent(store) {
		opts = append(opts, server.WithHistory(store))
	}
	gameServer := server.NewServer(cfg.Server, cfg.GameSetup(), opts...)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go gameServer.Run(hubCtx)

	mux := http.NewServeMux()

	// Bots, observers and controllers all connect on the root path
	mux.HandleFunc("/", gameServer.HandleWebSocket)
	mux.HandleFunc("/api/status", gameServer.HandleStatus)
	mux.HandleFunc("/api/matches", gameServer.HandleMatches)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()
	log.Info().Msgf("Server running at ws://localhost:%d/", cfg.Server.Port)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Stop the hub and the turn clock before flushing what they produced
	stopHub()
	gameServer.Shutdown()

	if err := recorder.Close(); err != nil {
		log.Error().Err(err).Msg("Closing result storage failed")
	}
	tel.Close()

	log.Info().Msg("Server stopped")
	closeLogs()
}
