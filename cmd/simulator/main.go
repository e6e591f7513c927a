// Package main runs the local live-show backend simulator: the stream,
// engagement and chat APIs plus the socket endpoint, seeded with one demo
// broadcast.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/violive/liveshow-go/config"
	"github.com/violive/liveshow-go/internal/models"
	"github.com/violive/liveshow-go/internal/simulator"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	state := simulator.NewState()
	seed(state)

	hub := simulator.NewHub(logger)
	server := simulator.NewServer(state, hub, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Simulator.Port,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Simulator.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Simulator.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("simulator listening", zap.String("port", cfg.Simulator.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("simulator stopped")
}

// seed installs one demo broadcast with a poll and a giveaway.
func seed(state *simulator.State) {
	videoStart, videoEnd := 30.0, 120.0
	state.AddStream(models.LiveStream{
		ID:           42,
		ChannelID:    "42",
		Title:        "Summer Drop Launch",
		Streamer:     models.Streamer{ID: "host-1", Name: "Viola", Verified: true},
		VideoURL:     "https://cdn.example.com/streams/42/index.m3u8",
		ThumbnailURL: "https://cdn.example.com/streams/42/thumb.jpg",
		ViewerCount:  128,
		IsLive:       true,
		StartTime:    time.Now(),
		FeaturedProducts: []models.FeaturedProduct{
			{ID: "sku-100", Title: "Canvas Tote", Price: 39.90, Currency: "EUR"},
		},
	})
	state.AddPoll(models.Poll{
		ID:          "poll-1",
		BroadcastID: "42",
		Question:    "Which colorway should we restock?",
		Options: []models.PollOption{
			{ID: "opt-red", Text: "Red"},
			{ID: "opt-blue", Text: "Blue"},
			{ID: "opt-green", Text: "Green"},
		},
		VideoStartTime: &videoStart,
		VideoEndTime:   &videoEnd,
		IsActive:       true,
	})
	state.AddContest(models.Contest{
		ID:          "contest-1",
		BroadcastID: "42",
		Title:       "Tote Giveaway",
		Prize:       "Canvas Tote",
		ContestType: models.ContestTypeGiveaway,
		IsActive:    true,
	})
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
