// Quack signaling relay — server entry point.
//
// The relay glues anonymous WebSocket connections into named rooms and fans
// out WebRTC negotiation frames between the members. Audio never touches the
// relay; once negotiated, media flows directly between the participants.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quackvoice/quack/internal/config"
	"github.com/quackvoice/quack/internal/httpapi"
	"github.com/quackvoice/quack/internal/relay"
	"github.com/quackvoice/quack/internal/room"
	"github.com/quackvoice/quack/internal/util"
)

func main() {
	// Root context — cancelled on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg := config.Load()

	// Optional Redis presence mirror.
	var presence relay.Presence
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			util.LogError("failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		defer client.Close()
		presence = relay.NewRedisPresence(client)
		util.LogInfo("Redis presence mirror enabled (%s)", cfg.Redis.Addr())
	}

	registry := room.NewRegistry()
	router := relay.NewRouter(registry, presence)
	supervisor := relay.NewSupervisor(registry, router, presence)

	router.OnRelayed(func(ev relay.RelayedEvent) {
		util.LogDebug("relayed %s from %s in room %s", ev.Frame.Type, ev.Frame.SenderID, ev.RoomID)
	})

	util.StartStatsReporter(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.New(supervisor, cfg.Environment),
	}

	go func() {
		util.LogInfo("signaling relay listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown: close all live connections, then the listener.
	util.LogInfo("shutting down")
	supervisor.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		util.LogWarning("shutdown incomplete: %v", err)
	}
}
