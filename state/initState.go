package state

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/digitalequity/seasure-sp2/config"
	"github.com/digitalequity/seasure-sp2/internal/blob"
	"github.com/digitalequity/seasure-sp2/internal/entity"
	"github.com/digitalequity/seasure-sp2/internal/store"
	"github.com/digitalequity/seasure-sp2/internal/store/mongostore"
)

type AppState struct {
	Ctx    context.Context
	Cancel context.CancelFunc
	Redis  *redis.Client
	Mongo  *mongo.Client
	Blobs  blob.Store

	Rooms    store.Collection[entity.ChatRoom]
	Messages store.Collection[entity.Message]

	closeBlobs func() error
}

func InitAppState(ctx context.Context, cancel context.CancelFunc) (*AppState, error) {
	rAddr := config.Conf.DATABASE.Redis.Addr
	rPass := config.Conf.DATABASE.Redis.Password

	mongoClient, err := InitMongo(context.Background())
	if err != nil {
		return nil, err
	}

	rdb, err := InitRedis(rAddr, rPass, 0)
	if err != nil {
		return nil, err
	}

	blobs, closeBlobs, err := InitBucket(ctx)
	if err != nil {
		return nil, err
	}

	db := mongoClient.Database(config.Conf.DATABASE.Mongo.Name)

	return &AppState{
		Ctx:        ctx,
		Cancel:     cancel,
		Mongo:      mongoClient,
		Redis:      rdb,
		Blobs:      blobs,
		Rooms:      mongostore.NewCollection[entity.ChatRoom](db, "chat_rooms"),
		Messages:   mongostore.NewCollection[entity.Message](db, "messages"),
		closeBlobs: closeBlobs,
	}, nil
}

func (a *AppState) Close() {
	if a.closeBlobs != nil {
		log.Info().Msg("Closing blob storage client...")
		if err := a.closeBlobs(); err != nil {
			log.Error().Err(err).Msg("failed to close blob storage client")
		}
	}

	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		log.Info().Msg("Closing MongoDB client...")
		defer cancel()
		if err := a.Mongo.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("failed to disconnect MongoDB client")
		}
	}

	if a.Redis != nil {
		log.Info().Msg("Closing Redis client...")
		if err := a.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis client")
		}
	}
}
