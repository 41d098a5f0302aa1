package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mossy-p/webrtc-collab/config"
	"github.com/mossy-p/webrtc-collab/internal/handlers"
	"github.com/mossy-p/webrtc-collab/internal/queue"
	"github.com/mossy-p/webrtc-collab/internal/room"
	"github.com/mossy-p/webrtc-collab/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var (
		port      string
		storeKind string
	)

	cmd := &cobra.Command{
		Use:   "signaling",
		Short: "Room coordinator for WebRTC mesh calls and a shared whiteboard",
		Long: `signaling runs the websocket server that groups participants into rooms,
relays WebRTC negotiation between them and keeps each room's whiteboard in
sync. Settings come from the environment; flags override them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("store") {
				cfg.StrokeStore = storeKind
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	cmd.Flags().StringVar(&storeKind, "store", "", "stroke store: redis, dynamodb or memory (overrides STROKE_STORE)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stroke store: %w", err)
	}
	log.Printf("Stroke store ready (%s)", cfg.StrokeStore)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	q := queue.NewManager(cfg.Persist.Workers, cfg.Persist.QueueSize)
	coord := room.NewCoordinator(st, q, room.NewMetrics(reg), cfg.Persist.Timeout)
	room.RegisterGauges(reg, coord.Registry, q.Depth)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(cfg, coord, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting collaboration server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			coord.Shutdown(shutdownTimeout)
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Println("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := coord.Shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("Shutdown completed")
	return nil
}
