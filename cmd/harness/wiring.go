package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"golang.org/x/time/rate"

	"goa.design/harness/bus"
	"goa.design/harness/binding"
	"goa.design/harness/internal/config"
	"goa.design/harness/persistence"
	"goa.design/harness/providers/anthropic"
	"goa.design/harness/providers/openai"
	"goa.design/harness/recording"
	"goa.design/harness/recording/filestore"
	"goa.design/harness/recording/inmemstore"
	"goa.design/harness/recording/mongostore"
	"goa.design/harness/recording/redisstore"
	"goa.design/harness/reactive"
	"goa.design/harness/signal"
	"goa.design/harness/telemetry"
)

// buildHub constructs the bus.Hub every sub-command runs a flow against,
// wiring telemetry.Logger per the --verbose flag.
func buildHub() *bus.Hub {
	logger := telemetry.NewNoopLogger()
	if verbose {
		logger = telemetry.NewClueLogger()
	}
	return bus.New(bus.WithLogger(logger), bus.WithMetrics(telemetry.NewNoopMetrics()))
}

// buildRecordingStore constructs the recording.Store cfg's recording.backend
// names, honoring the --database override per §6's CLI surface.
func buildRecordingStore(ctx context.Context, cfg *config.Config) (recording.Store, error) {
	backend := cfg.Recording.Backend
	switch backend {
	case "", "memory":
		return inmemstore.New(), nil
	case "file":
		dir := cfg.Recording.FilePath
		if database != "" {
			dir = database
		}
		return filestore.New(dir)
	case "mongo":
		uri := cfg.Recording.MongoURI
		if database != "" {
			uri = database
		}
		client, err := dialMongo(ctx, uri)
		if err != nil {
			return nil, err
		}
		return mongostore.New(mongostore.Options{Client: client, Database: cfg.Recording.MongoDB})
	case "redis":
		addr := cfg.Recording.RedisAddr
		if database != "" {
			addr = database
		}
		return redisstore.New(redisstore.Options{Client: redis.NewClient(&redis.Options{Addr: addr})})
	default:
		return nil, usageErrorf("unsupported recording backend %q", backend)
	}
}

// buildSnapshotStore constructs the Mongo-backed persistence.SnapshotStore
// used to save a paused run's flow.Snapshot, when cfg.Persistence.MongoURI
// is configured. Pause/resume across process restarts is optional: a CLI
// invocation that never pauses never needs it.
func buildSnapshotStore(ctx context.Context, cfg *config.Config) (*persistence.SnapshotStore, error) {
	if cfg.Persistence.MongoURI == "" {
		return nil, nil
	}
	client, err := dialMongo(ctx, cfg.Persistence.MongoURI)
	if err != nil {
		return nil, err
	}
	return persistence.NewSnapshotStore(persistence.Options{Client: client, Database: cfg.Persistence.MongoDB})
}

func dialMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, usageErrorf("a mongo URI is required for this backend")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// buildRegistry registers the built-in node types every flow can use: an
// "echo" type for flows with no provider dependency, and one "agent.<name>"
// type per provider configured with an API key.
func buildRegistry(hub *bus.Hub, cfg *config.Config) (*binding.Registry, error) {
	reg := binding.NewRegistry()
	reg.Register(binding.NodeType{
		Type: "echo",
		Run: func(ctx context.Context, input any) (any, error) {
			return input, nil
		},
	})

	if cfg.Providers.Anthropic.APIKey != "" {
		p := cfg.Providers.Anthropic
		client, err := anthropic.NewFromAPIKey(p.APIKey, anthropic.Options{
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			RateLimiter: rateLimiterFor(p.RateLimitPerSecond),
		})
		if err != nil {
			return nil, fmt.Errorf("configure anthropic provider: %w", err)
		}
		reg.Register(providerNodeType("agent.anthropic", hub, client.Provider()))
	}

	if cfg.Providers.OpenAI.APIKey != "" {
		p := cfg.Providers.OpenAI
		client, err := openai.NewFromAPIKey(p.APIKey, openai.Options{
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			RateLimiter: rateLimiterFor(p.RateLimitPerSecond),
		})
		if err != nil {
			return nil, fmt.Errorf("configure openai provider: %w", err)
		}
		reg.Register(providerNodeType("agent.openai", hub, client.Provider()))
	}

	return reg, nil
}

func rateLimiterFor(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// providerNodeType adapts a reactive.ProviderFunc into a binding.NodeType:
// the node's input must carry a "prompt" string, and any signals the
// provider emits mid-turn are forwarded onto hub under the run's own
// scope, the same emit-to-Hub.Emit bridge reactive.Runtime's
// activationHandler uses.
func providerNodeType(name string, hub *bus.Hub, provider reactive.ProviderFunc) binding.NodeType {
	return binding.NodeType{
		Type: name,
		Run: func(ctx context.Context, input any) (any, error) {
			m, _ := input.(map[string]any)
			prompt, _ := m["prompt"].(string)
			return provider(ctx, prompt, func(sigName string, payload any) {
				hub.Emit(ctx, signal.New(sigName, payload))
			})
		},
	}
}
