// Package main is the composition root for the live-show client: it wires
// config, storage, the transport client and the four managers the way a
// mobile host embeds them, then follows one broadcast until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/violive/liveshow-go/config"
	"github.com/violive/liveshow-go/internal/api"
	"github.com/violive/liveshow-go/internal/chat"
	"github.com/violive/liveshow-go/internal/engagement"
	"github.com/violive/liveshow-go/internal/participation"
	"github.com/violive/liveshow-go/internal/session"
	"github.com/violive/liveshow-go/internal/streams"
	"github.com/violive/liveshow-go/internal/transport"
	"github.com/violive/liveshow-go/pkg/analytics"
	"github.com/violive/liveshow-go/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	tracker := newTracker(cfg, logger)

	// External API clients.
	streamsAPI := api.NewStreamsClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.API.TimeoutSec)
	chatAPI := api.NewChatClient(cfg.Chat.BaseURL, cfg.Chat.TimeoutSec)

	// Engagement backend selection happens lazily on first load.
	selectBackend := func() engagement.Backend {
		if cfg.IsDemo() {
			logger.Info("using demo engagement backend")
			return api.NewDemoEngagement()
		}
		return api.NewEngagementClient(cfg.Engagement.BaseURL, cfg.Engagement.APIKey, cfg.Engagement.TimeoutSec)
	}

	record := participation.NewRecord(ctx, store, logger)
	videoSync := engagement.NewVideoSync()
	engagementMgr := engagement.NewManager(selectBackend, videoSync, record, tracker, logger)
	chatMgr := chat.NewManager(chatAPI, store, tracker, logger)

	socket := transport.NewClient(cfg.Socket.BaseURL, logger)
	registry := streams.NewRegistry(streamsAPI, socket, chatMgr, tracker, logger)
	registry.SetViewerCountHandler(func(count int) {
		logger.Info("current viewer count", zap.Int("count", count))
	})

	// Each manager consumes its own event stream.
	registryEvents, cancelRegistry := socket.Events()
	chatEvents, cancelChat := socket.Events()
	engagementEvents, cancelEngagement := socket.Events()
	defer cancelRegistry()
	defer cancelChat()
	defer cancelEngagement()
	go registry.Run(ctx, registryEvents)
	go chatMgr.Run(ctx, chatEvents)
	go engagementMgr.Run(ctx, engagementEvents)

	statusChanges, cancelStatus := socket.StatusChanges()
	defer cancelStatus()
	go func() {
		for change := range statusChanges {
			logger.Info("connection status",
				zap.String("status", string(change.Status)),
				zap.String("reason", change.Reason))
		}
	}()

	socket.Connect()
	defer socket.Disconnect()

	if err := registry.FetchActiveStreams(ctx); err != nil {
		logger.Warn("initial stream fetch failed", zap.Error(err))
	}

	if all := registry.Streams(); len(all) > 0 {
		first := all[0]
		registry.ShowLiveStream(first.ID)
		sctx := session.NewSessionContext(session.NewBroadcastContext(first.ChannelID), "")
		if err := engagementMgr.LoadEngagement(ctx, sctx); err != nil {
			logger.Warn("engagement load failed", zap.Error(err))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("client stopped")
}

// newTracker selects the analytics sink: the Redis queue when configured,
// otherwise the structured log.
func newTracker(cfg *config.Config, logger *zap.Logger) analytics.Tracker {
	if cfg.Analytics.Sink == "queue" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return analytics.NewQueue(client, logger)
	}
	return analytics.NewLogger(logger)
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return storage.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return storage.NewFile(cfg.Storage.Path)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
