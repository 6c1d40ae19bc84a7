package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/config"
	"github.com/digitalequity/seasure-sp2/internal/chat"
	chat_handler "github.com/digitalequity/seasure-sp2/internal/handlers/chat-handler"
	hub_handler "github.com/digitalequity/seasure-sp2/internal/handlers/hub-handler"
	"github.com/digitalequity/seasure-sp2/internal/push"
	"github.com/digitalequity/seasure-sp2/internal/queue"
	"github.com/digitalequity/seasure-sp2/internal/routers"
	"github.com/digitalequity/seasure-sp2/internal/websocket"
	"github.com/digitalequity/seasure-sp2/internal/worker"
	"github.com/digitalequity/seasure-sp2/state"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appState, err := state.InitAppState(ctx, stop)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application state")
	}
	defer appState.Close()

	producer := queue.NewProducer(appState.Redis)

	registry := chat.NewRegistry(appState.Rooms)
	tracker := chat.NewTracker(appState.Rooms, appState.Messages)
	pipeline := chat.NewPipeline(appState.Rooms, appState.Messages, appState.Blobs, tracker)
	pipeline.RetryUnread = func(roomID, userID string) {
		job := queue.NewJob(queue.JobTypeUnreadRetry, queue.UnreadRetryPayload{RoomID: roomID, UserID: userID}, 2, 5, time.Hour)
		if err := producer.Enqueue(context.Background(), job); err != nil {
			log.Error().Err(err).Str("roomID", roomID).Str("userID", userID).Msg("failed to enqueue unread retry")
		}
	}

	wsHub := websocket.NewHub()
	defer wsHub.Close()
	log.Info().Msg("Websocket hub initialized")

	gateway := websocket.NewGateway(wsHub, func() *chat.Session {
		return chat.NewSession(registry, pipeline, tracker)
	})

	r := routers.NewRouter(routers.Deps{
		Chat:    chat_handler.NewChatHandler(registry, pipeline, tracker, producer),
		Hub:     hub_handler.NewHubHandler(wsHub),
		Gateway: gateway,
	})

	pushClient := push.NewClient(config.Conf.NOTIFY.WebhookURL)
	jobHandler := worker.NewJobHandler(pushClient, tracker)
	workerPool := worker.NewWorkerPool(appState.Redis, config.Conf.WORKER.Num, jobHandler)
	workerPool.Start(ctx)

	server := &http.Server{
		Addr:         config.Conf.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Msgf("Starting server on http://localhost%s", config.Conf.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(fmt.Sprintf("ListenAndServe failed: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown initiated...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("Server exited gracefully")
	}
	workerPool.Wait()
}
