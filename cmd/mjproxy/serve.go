package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mjproxy/core/internal/callback"
	"github.com/mjproxy/core/internal/config"
	"github.com/mjproxy/core/internal/httpapi"
	"github.com/mjproxy/core/internal/notify"
	"github.com/mjproxy/core/internal/registry"
	"github.com/mjproxy/core/internal/selector"
	"github.com/mjproxy/core/internal/store"
	"github.com/mjproxy/core/internal/store/rediscache"
	"github.com/mjproxy/core/internal/transport"
)

var zlog = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.Stamp,
}).With().Timestamp().Logger()

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the proxy server: gateway clients, account runtimes and the HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSetting(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

// redisBackedStore wraps a Store, swapping in rediscache for ban
// counters when redis is configured (spec.md §4.2 "ban counters" are
// TTL-driven, which rediscache natively models and sqlitestore/pgstore
// only stub).
type redisBackedStore struct {
	store.Store
	bans store.BanCounterStore
}

func (s redisBackedStore) BanCounters() store.BanCounterStore { return s.bans }

func runServe(cfg *config.Setting) error {
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("serve: open store: %w", err)
	}

	cache := rediscache.New(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, "mjproxy")
	defer cache.Close()
	st = redisBackedStore{Store: st, bans: cache}

	dispatcher := callback.New(cfg.CallbackWorkers, cfg.CallbackQueueSize, zlog)
	defer dispatcher.Close()

	alerter := notify.NewMulti(
		notify.NewEmailNotifier(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.AlertTo,
		}),
		notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannelID),
	)

	reg := registry.New(st, cache, transport.NewDiscordGo(), callback.NotifierAdapter{Dispatcher: dispatcher}, alerter, selector.Policy(cfg.SelectorPolicy), zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("serve: load accounts: %w", err)
	}
	if err := reg.Start(ctx); err != nil {
		return fmt.Errorf("serve: start registry: %w", err)
	}
	defer reg.Stop()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	httpapi.New(reg, st.Tasks()).Register(engine)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("http surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
