package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"auditorium/internal/api"
	"auditorium/internal/assets"
	"auditorium/internal/config"
	"auditorium/internal/countdown"
	"auditorium/internal/scene"
	"auditorium/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎭 ================================")
	log.Println("🎭  VIRTUAL AUDITORIUM")
	log.Println("🎭 ================================")

	if err := run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("👋 Goodbye!")
}

func run() error {
	appConfig, err := config.Load()
	if err != nil {
		return err
	}
	serverCfg := appConfig.Server
	sceneCfg := appConfig.Scene

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Models
	manifest := assets.DefaultManifest()
	if appConfig.Assets.Manifest != "" {
		if manifest, err = assets.LoadManifest(ctx, appConfig.Assets.Manifest); err != nil {
			return err
		}
		log.Printf("📦 Asset manifest: %s (%d models)", appConfig.Assets.Manifest, len(manifest.Models))
	}
	models := assets.NewCache(assets.NewManifestLoader(manifest), appConfig.Assets.CacheSize)

	// Event log sink shared by every scene
	var sink *scene.Sink
	if path := appConfig.EventLog.Path; path != "" {
		if sink, err = scene.OpenSink(path); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", path)
			defer sink.Close()
		}
	}

	layout := appConfig.Layout
	store := session.NewStore(scene.Config{
		Slots:      layout.Seats,
		Catalog:    layout.Guests,
		Selectable: layout.Selectable,
		ChatTTL:    sceneCfg.ChatTTL,
		Countdown: countdown.TimeOfDay{
			Hour:   sceneCfg.PresentationHour,
			Minute: sceneCfg.PresentationMinute,
			Second: sceneCfg.PresentationSecond,
		},
		DaysAhead:     sceneCfg.DaysAhead,
		FPS:           sceneCfg.FPS,
		VideoURL:      sceneCfg.VideoURL,
		AuditoriumURL: sceneCfg.AuditoriumURL,
	}, func() scene.Deps {
		deps := scene.Deps{
			Loader: models,
			Hooks:  api.SceneHooks(),
		}
		if sink != nil {
			deps.EventSink = sink
		}
		return deps
	}, serverCfg.MaxSessions)

	log.Printf("🎮 Config: %d FPS, chat %s, presentation at %02d:%02d:%02d +%dd, %d seats, %d guests",
		sceneCfg.FPS, sceneCfg.ChatTTL,
		sceneCfg.PresentationHour, sceneCfg.PresentationMinute, sceneCfg.PresentationSecond, sceneCfg.DaysAhead,
		len(layout.Seats), len(layout.Guests))

	catalog := api.Catalog{
		Selectable: layout.Selectable,
		Guests:     layout.Guests,
		Slots:      layout.Seats,
	}
	server := api.NewServer(store, api.ServerConfig{
		Catalog:        &catalog,
		StaticFilesDir: serverCfg.StaticDir,
		CORSOrigins:    serverCfg.CORSOrigins,
		ScreenWidth:    sceneCfg.ScreenWidth,
		ScreenHeight:   sceneCfg.ScreenHeight,
	})

	// Start debug server
	obs := appConfig.Observability
	if err := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       obs.Enabled,
		ListenAddr:    obs.ListenAddr,
		BasicAuthUser: obs.BasicAuthUser,
		BasicAuthPass: obs.BasicAuthPass,
		Stats: func() map[string]interface{} {
			stats := server.Stats()
			stats["scenes"] = store.Stats()
			stats["models"] = models.Stats()
			return stats
		},
	}); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(":" + strconv.Itoa(serverCfg.Port))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("🛑 Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		store.CloseAll()
		api.UpdateActiveSessions(0)
		return err
	})

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
