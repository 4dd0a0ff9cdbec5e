package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/broadcast"
	"github.com/brightwell/liveroom/go/internal/content"
	"github.com/brightwell/liveroom/go/internal/dbconfig"
	"github.com/brightwell/liveroom/go/internal/gateway"
	"github.com/brightwell/liveroom/go/internal/models"
	"github.com/brightwell/liveroom/go/internal/room"
	"github.com/brightwell/liveroom/go/internal/roster"
	"github.com/brightwell/liveroom/go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if len(config.Rooms) == 0 {
		log.Fatal().Msg("no rooms configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	packs, err := content.LoadDir(config.Content.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", config.Content.Dir).Msg("failed to load clue packs")
	}
	library := content.NewLibrary(packs)

	// Persistence: Postgres in production, in-memory for local development.
	var eventStore store.EventStore
	var pool *pgxpool.Pool
	if getEnv("STORAGE", "postgres") == "memory" {
		eventStore = store.NewMemoryStore()
		log.Warn().Msg("using in-memory event store")
	} else {
		pool, err = pgxpool.New(ctx, dbconfig.NewConfigFromEnv().DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create postgres pool")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping postgres")
		}
		eventStore = store.NewPostgresStore(pool)
	}

	writer := store.NewAsyncWriter(eventStore, clock, store.DefaultWriterConfig())
	writer.Start(ctx)
	defer writer.Stop()

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), clock)
	go cm.Start(ctx)
	svc := gateway.NewService(cm, clock)

	// Broadcast transport: JetStream in production, in-process for local
	// development. Both feed the same dispatcher.
	var publisher broadcast.Publisher
	var inproc *broadcast.InProc
	if getEnv("BROADCAST", "nats") == "inproc" {
		inproc = broadcast.NewInProc()
		publisher = inproc
		log.Warn().Msg("using in-process broadcast transport")
	} else {
		natsCfg := broadcast.DefaultNATSConfig()
		natsCfg.URL = config.NATS.URL
		if config.NATS.Stream != "" {
			natsCfg.StreamName = config.NATS.Stream
		}
		natsPub, err := broadcast.NewNATSPublisher(natsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect broadcast transport")
		}
		defer natsPub.Close()
		publisher = natsPub

		consumerCfg := gateway.DefaultConsumerConfig()
		consumerCfg.URL = config.NATS.URL
		if config.NATS.Stream != "" {
			consumerCfg.StreamName = config.NATS.Stream
		}
		consumer, err := gateway.NewEventConsumer(cm, consumerCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to bind gateway consumer")
		}
		defer consumer.Stop()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("gateway consumer stopped")
			}
		}()
	}

	dispatcher := broadcast.NewDispatcher(publisher, clock, broadcast.DefaultDispatcherConfig())
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	livenessCfg := config.livenessConfig()
	for _, rc := range config.Rooms {
		if _, err := library.PackForTheme(rc.Theme); err != nil {
			log.Fatal().Err(err).Str("theme", rc.Theme).Msg("room theme has no clue pack")
		}

		rm := &models.Room{
			ID:        uuid.New(),
			Theme:     rc.Theme,
			Status:    models.RoomStatusIntermission,
			Settings:  rc.Settings(),
			CreatedAt: clock.Now(),
		}
		registry := roster.New(rm.ID, rm.Settings.Capacity, rm.Settings.MinPlayers, clock)
		sched := room.NewScheduler(rm, registry, room.LibrarySource{Library: library, Theme: rc.Theme}, clock, dispatcher, writer, room.Config{
			Liveness: livenessCfg,
		})
		svc.AddRoom(sched)

		if inproc != nil {
			bridgeInProc(ctx, inproc, cm, rm.ID)
		}

		go sched.Run(ctx)
		log.Info().
			Str("room_id", rm.ID.String()).
			Str("theme", rm.Theme).
			Int("capacity", rm.Settings.Capacity).
			Msg("room configured")
	}

	server := &http.Server{
		Addr:    config.Server.Addr,
		Handler: svc.Handler(),
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}

// bridgeInProc pipes the in-process broadcast feed for one room into the
// connection manager, standing in for the JetStream consumer.
func bridgeInProc(ctx context.Context, bus *broadcast.InProc, cm *gateway.ConnectionManager, roomID uuid.UUID) {
	ch, cancel := bus.Subscribe(roomID)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				cm.Broadcast(env)
			}
		}
	}()
}
