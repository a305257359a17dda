package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/bot"
	"github.com/DoyleJ11/servant-draft/internal/catalog"
	"github.com/DoyleJ11/servant-draft/internal/config"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/httpapi"
	"github.com/DoyleJ11/servant-draft/internal/hub"
	"github.com/DoyleJ11/servant-draft/internal/logging"
	"github.com/DoyleJ11/servant-draft/internal/platform"
	"github.com/DoyleJ11/servant-draft/internal/platform/discord"
	"github.com/DoyleJ11/servant-draft/internal/recorder"
	"github.com/DoyleJ11/servant-draft/internal/roster"
	"github.com/DoyleJ11/servant-draft/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	syn, err := balance.LoadSynergy(cfg.SynergyPath)
	if err != nil {
		return err
	}
	balancer, err := balance.New(cfg.BalanceSettings(), syn, log.Named("balance"), balance.WithWeights(cfg.Weights()))
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage(), log.Named("storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(db); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()
	if err := storage.Migrate(db); err != nil {
		return err
	}

	rosterDB := roster.NewDB(db)
	var rosterStore roster.Store = rosterDB
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, roster reads go straight to the database", zap.Error(err))
		} else {
			rosterStore = roster.NewCached(rosterDB, rdb, cfg.Redis.TTL, log.Named("roster"))
		}
	}
	matches := recorder.NewStore(db)

	var (
		session *discordgo.Session
		adapter platform.Adapter
	)
	if cfg.Discord.Token != "" {
		session, err = discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			return fmt.Errorf("create Discord session: %w", err)
		}
		session.Identify.Intents = discordgo.IntentsGuilds
		adapter = discord.New(session, log.Named("discord"))
	} else {
		log.Warn("DISCORD_TOKEN not set, drafts only run through the HTTP API")
		adapter = platform.NewMemory()
	}

	h := hub.NewHub(ctx)
	orch, err := draft.New(draft.Deps{
		Store:     h,
		Platform:  platform.NewResilient(adapter, cfg.Resilient(), log.Named("platform")),
		Catalog:   cat,
		Balancer:  balancer,
		Roster:    rosterStore,
		Settings:  rosterDB,
		Recorder:  matches,
		Limits:    cfg.Limits(),
		TeamSize:  cfg.Draft.TeamSize,
		Algorithm: balance.Algorithm(cfg.Balance.Algorithm),
		BotDelay:  cfg.Draft.BotDelay,
		Log:       log.Named("draft"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Orchestrator: orch,
			Balancer:     balancer,
			Roster:       rosterStore,
			History:      matches,
			Secret:       cfg.OperatorSecret,
			Log:          log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if session != nil {
		b := bot.New(session, orch, bot.Config{
			GuildID: cfg.Discord.GuildID,
			Roster:  rosterStore,
			Weights: cfg.Weights(),
			Log:     log.Named("bot"),
		})
		g.Go(func() error {
			if err := b.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			return b.Stop()
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Shutdown()
		return err
	})
	return g.Wait()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
