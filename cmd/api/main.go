package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sparehub.org/internal/auth"
	"sparehub.org/internal/config"
	"sparehub.org/internal/httpapi"
	"sparehub.org/internal/inventory"
	"sparehub.org/internal/mail"
	"sparehub.org/internal/obs"
	"sparehub.org/internal/store/memory"
	"sparehub.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	var (
		configPath string
		envFiles   []string
	)
	cmd := &cobra.Command{
		Use:           "sparehub-api",
		Short:         "Sparehub inventory API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, envFiles)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("SPAREHUB_CONFIG"), "path to the YAML config file")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files to load before reading config")

	if err := cmd.Execute(); err != nil {
		obs.Logger().WithError(err).Fatal("sparehub-api stopped")
	}
}

type stores struct {
	auth      auth.Store
	inventory inventory.Service
	ready     httpapi.ReadyProbe
	close     func() error
	memory    bool
}

func openStores(cfg *config.Config) (stores, error) {
	if cfg.Database.DSN == "" {
		return stores{
			auth:      memory.NewAuthStore(),
			inventory: inventory.NewInMemory(),
			close:     func() error { return nil },
			memory:    true,
		}, nil
	}
	st, err := pg.Open(cfg.Database.DSN, pg.PoolSettings{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return stores{}, fmt.Errorf("open db: %w", err)
	}
	return stores{auth: st, inventory: st, ready: httpapi.ReadyProbe{DB: st}, close: st.Close}, nil
}

func newMailer(cfg *config.Config) auth.Mailer {
	if cfg.Mail.Mode == "smtp" {
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			TLSMode:  cfg.Mail.TLS,
		})
	}
	return mail.NewLogSender(obs.Logger())
}

func run(ctx context.Context, configPath string, envFiles []string) error {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := obs.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	rbac, err := auth.NewRBACService(st.auth)
	if err != nil {
		return err
	}
	if st.memory {
		log.Warn("no database configured, using the in-memory store")
		if err := rbac.EnsureBuiltins(ctx); err != nil {
			return err
		}
	}

	tokens, err := auth.NewTokenService(cfg.TokenConfig())
	if err != nil {
		return err
	}
	hasher := auth.NewHasher(auth.WithCost(cfg.Auth.BcryptCost), auth.WithConcurrency(cfg.Auth.HashConcurrency))
	svc, err := auth.NewService(st.auth, hasher, tokens,
		auth.WithMailer(newMailer(cfg)),
		auth.WithDefaultRole(cfg.Auth.DefaultRole),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
		auth.WithResetURL(cfg.Auth.ResetURL),
	)
	if err != nil {
		return err
	}

	janitor, err := auth.NewJanitor(st.auth, cfg.Auth.JanitorSchedule)
	if err != nil {
		return err
	}
	janitor.Start()
	defer func() { <-janitor.Stop().Done() }()

	api, err := httpapi.New(httpapi.Deps{
		Auth:      svc,
		RBAC:      rbac,
		Tokens:    tokens,
		Inventory: st.inventory,
		Ready:     st.ready,
	}, httpapi.Options{
		Version:     version,
		Development: cfg.IsDevelopment(),
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"version": version, "addr": srv.Addr, "env": cfg.App.Env}).Info("starting sparehub-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
