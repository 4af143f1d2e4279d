package main

import (
	"context"
	"errors"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"parley/internal/auth"
	"parley/internal/clock"
	"parley/internal/config"
	"parley/internal/filestore"
	"parley/internal/http"
	"parley/internal/notify"
	"parley/internal/session"
	"parley/internal/storage"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	blobs, err := filestore.NewLocalBlobStore(filepath.Clean(cfg.UploadsPath))
	if err != nil {
		return err
	}

	authService := auth.NewService(ctx, auth.Config{TokenExpiry: cfg.TokenExpiry}, store)

	notifier := notify.New(notify.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.PushSubscriber,
	}, store)

	sessions := session.NewManager(store, clock.System(), notifier, session.Config{
		DeliveryDelay: cfg.DeliveryDelay,
		TypingTTL:     cfg.TypingTTL,
		ConnectDelay:  cfg.ConnectDelay,
		RingTimeout:   cfg.RingTimeout,
	})

	apiServer := http.NewAPIServer(authService, sessions, blobs, store, notifier, cfg.APIAddr, cfg.CORSOrigins)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
