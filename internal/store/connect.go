package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoURL = "mongodb://localhost:27017/url_content_fetcher"

// Connect dials MongoDB using MONGODB_URL (or the given override) and
// returns a ready *MongoRepository, retrying with backoff the same way
// a database layer retries connections on startup.
func Connect(ctx context.Context, mongoURL string) (*MongoRepository, func(context.Context) error, error) {
	if mongoURL == "" {
		mongoURL = os.Getenv("MONGODB_URL")
	}
	if mongoURL == "" {
		mongoURL = defaultMongoURL
	}

	client, dbName, err := dialWithRetry(ctx, mongoURL)
	if err != nil {
		return nil, nil, err
	}

	repo := NewMongoRepository(client.Database(dbName))
	closeFn := func(ctx context.Context) error { return client.Disconnect(ctx) }
	return repo, closeFn, nil
}

func dialWithRetry(ctx context.Context, mongoURL string) (*mongo.Client, string, error) {
	backoff := 1 * time.Second
	const maxAttempts = 10
	const maxBackoff = 30 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		clientOpts := options.Client().ApplyURI(mongoURL)
		client, err := mongo.Connect(ctx, clientOpts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				if attempt > 1 {
					log.Info().Int("attempts", attempt).Msg("Connected to MongoDB after retries")
				}
				dbName := databaseNameFromURI(mongoURL)
				if dbName == "" {
					dbName = "url_content_fetcher"
				}
				return client, dbName, nil
			}
			_ = client.Disconnect(ctx)
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", backoff).Msg("MongoDB connection failed, retrying...")

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return nil, "", fmt.Errorf("failed to connect to MongoDB after %d attempts: %w", maxAttempts, lastErr)
}

// databaseNameFromURI extracts the path component of a mongodb:// URI,
// which mongo.Connect otherwise ignores when choosing a default database.
func databaseNameFromURI(uri string) string {
	const schemes = "mongodb://"
	idx := -1
	if len(uri) > len(schemes) {
		idx = indexAfterHost(uri)
	}
	if idx < 0 || idx >= len(uri) {
		return ""
	}
	name := uri[idx:]
	for i, c := range name {
		if c == '?' {
			return name[:i]
		}
	}
	return name
}

func indexAfterHost(uri string) int {
	start := 0
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		if len(uri) >= len(prefix) && uri[:len(prefix)] == prefix {
			start = len(prefix)
			break
		}
	}
	slash := -1
	for i := start; i < len(uri); i++ {
		if uri[i] == '/' {
			slash = i
			break
		}
	}
	if slash < 0 {
		return -1
	}
	return slash + 1
}
