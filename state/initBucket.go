package state

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/config"
	"github.com/digitalequity/seasure-sp2/internal/blob"
	"github.com/digitalequity/seasure-sp2/internal/blob/gcsblob"
	"github.com/digitalequity/seasure-sp2/internal/blob/memblob"
)

// InitBucket opens the attachment store. With no bucket configured it
// falls back to an in-memory store, which only suits local development:
// uploads vanish on restart.
func InitBucket(ctx context.Context) (blob.Store, func() error, error) {
	bucket := config.Conf.STORAGE.Bucket
	if bucket == "" {
		log.Warn().Msg("no storage bucket configured, attachments are held in memory")
		return memblob.New(), nil, nil
	}

	store, err := gcsblob.New(ctx, bucket, config.Conf.STORAGE.CDNDomain)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Str("bucket", bucket).Msg("GCS attachment store initialized")
	return store, store.Close, nil
}
