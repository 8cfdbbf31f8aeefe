package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jorilallo/outline/collab"
	"github.com/jorilallo/outline/core"
	"github.com/jorilallo/outline/events"
	"github.com/jorilallo/outline/store"
)

// Config holds the daemon settings.
type Config struct {
	MongoURI      string
	MongoDatabase string
	Collection    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DeltaStream   string
	EventStream   string
	ConsumerGroup string
	ConsumerName  string

	MaxRetries  int
	SessionIdle time.Duration

	LogLevel string
	Debug    bool
}

// Daemon wires the store, event bus, updater and delta consumer together.
type Daemon struct {
	config      Config
	mongoClient *mongo.Client
	redisClient *redis.Client
	store       *store.MongoStore
	bus         events.Bus
	updater     *collab.Updater
	consumer    *Consumer
}

// NewDaemon connects to MongoDB and Redis and builds the pipeline.
func NewDaemon(ctx context.Context, config Config) (*Daemon, error) {
	if err := core.ConfigureLogger(config.Debug, config.LogLevel); err != nil {
		return nil, err
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		return nil, err
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, err
	}

	collection := mongoClient.Database(config.MongoDatabase).Collection(config.Collection)
	st, err := store.NewMongoStore(collection)
	if err != nil {
		mongoClient.Disconnect(ctx)
		redisClient.Close()
		return nil, err
	}
	bus, err := events.NewRedisBus(redisClient, config.EventStream)
	if err != nil {
		mongoClient.Disconnect(ctx)
		redisClient.Close()
		return nil, err
	}
	updater := collab.NewUpdater(st, bus, collab.WithMaxRetries(config.MaxRetries))

	consumer := NewConsumer(redisClient, updater, ConsumerConfig{
		Stream: config.DeltaStream,
		Group:  config.ConsumerGroup,
		Name:   config.ConsumerName,
	})

	return &Daemon{
		config:      config,
		mongoClient: mongoClient,
		redisClient: redisClient,
		store:       st,
		bus:         bus,
		updater:     updater,
		consumer:    consumer,
	}, nil
}

// Run consumes deltas until the context is cancelled, reaping idle document
// sessions in the background.
func (d *Daemon) Run(ctx context.Context) error {
	go d.reapIdleSessions(ctx)
	return d.consumer.Run(ctx)
}

func (d *Daemon) reapIdleSessions(ctx context.Context) {
	ticker := time.NewTicker(d.config.SessionIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if released := d.updater.ReleaseIdle(d.config.SessionIdle); released > 0 {
				core.Debug("released idle document sessions", zap.Int("count", released))
			}
		}
	}
}

// Close releases all connections.
func (d *Daemon) Close(ctx context.Context) {
	if err := d.store.Close(); err != nil {
		core.Warn("failed to close document store", zap.Error(err))
	}
	if err := d.bus.Close(); err != nil {
		core.Warn("failed to close event bus", zap.Error(err))
	}
	if err := d.redisClient.Close(); err != nil {
		core.Warn("failed to close redis client", zap.Error(err))
	}
	if err := d.mongoClient.Disconnect(ctx); err != nil {
		core.Warn("failed to disconnect mongo client", zap.Error(err))
	}
}

func main() {
	mongoURI := flag.String("mongo", "mongodb://localhost:27017", "MongoDB connection URI")
	mongoDatabase := flag.String("db", "outline", "MongoDB database name")
	collection := flag.String("collection", "documents", "MongoDB documents collection")
	redisAddr := flag.String("redis", "localhost:6379", "Redis server address")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisDB := flag.Int("redis-db", 0, "Redis database number")
	deltaStream := flag.String("delta-stream", "collab.deltas", "Redis stream carrying incoming document deltas")
	eventStream := flag.String("event-stream", "collab.events", "Redis stream carrying emitted domain events")
	group := flag.String("group", "collabd", "Redis consumer group for the delta stream")
	name := flag.String("consumer", "", "Consumer name within the group (defaults to hostname)")
	maxRetries := flag.Int("max-retries", collab.DefaultOptions().MaxRetries, "Max persist retries after a revision conflict")
	sessionIdle := flag.Duration("session-idle", 10*time.Minute, "Idle time before a document session is released")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	debug := flag.Bool("debug", false, "Enable development logging")
	flag.Parse()

	consumerName := *name
	if consumerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "collabd"
		}
		consumerName = hostname
	}

	config := Config{
		MongoURI:      *mongoURI,
		MongoDatabase: *mongoDatabase,
		Collection:    *collection,
		RedisAddr:     *redisAddr,
		RedisPassword: *redisPassword,
		RedisDB:       *redisDB,
		DeltaStream:   *deltaStream,
		EventStream:   *eventStream,
		ConsumerGroup: *group,
		ConsumerName:  consumerName,
		MaxRetries:    *maxRetries,
		SessionIdle:   *sessionIdle,
		LogLevel:      *logLevel,
		Debug:         *debug,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	daemon, err := NewDaemon(startCtx, config)
	startCancel()
	if err != nil {
		log.Fatalf("failed to start collabd: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		core.Info("shutting down")
		cancel()
	}()

	core.Info("collabd started",
		zap.String("deltaStream", config.DeltaStream),
		zap.String("group", config.ConsumerGroup),
		zap.String("consumer", config.ConsumerName))

	if err := daemon.Run(ctx); err != nil && err != context.Canceled {
		core.Error("consumer stopped", zap.Error(err))
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	daemon.Close(closeCtx)
	closeCancel()
}
