// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/quizboard/internal/auth"
	"github.com/jason-s-yu/quizboard/internal/cache"
	"github.com/jason-s-yu/quizboard/internal/config"
	"github.com/jason-s-yu/quizboard/internal/handlers"
	"github.com/jason-s-yu/quizboard/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := &config.Config{}
	if err := newCmd(cfg).Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "quizboard",
		Short:   "Real-time quiz board rooms with a single host and live scoreboard.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	config.RegisterFlags(cmd.Flags(), cfg)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizboard v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := cfg.NewLogger()

	var journal cache.Journal = cache.NopJournal{}
	if cfg.RedisAddr != "" {
		rj, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.JournalQueue)
		if err != nil {
			return err
		}
		defer rj.Close()
		journal = rj
		logger.Infof("Journaling room actions to redis %s (list %s)", cfg.RedisAddr, cfg.JournalQueue)
	}

	issuer, err := auth.NewIssuer(cfg.CredentialTTL)
	if err != nil {
		return err
	}

	rooms := room.NewRegistry(room.Options{
		TTL:      cfg.RoomTTL,
		MaxRooms: cfg.MaxRooms,
		Journal:  journal,
		Logger:   logger,
	})

	srv := handlers.NewServer(logger, rooms, issuer, handlers.Options{
		SendBuffer:     cfg.SendBuffer,
		ReadLimit:      cfg.ReadLimit,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		AllowedOrigins: cfg.AllowedOrigins,
		PublicURL:      cfg.PublicURL,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("Running on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return rooms.Run(gctx, cfg.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
