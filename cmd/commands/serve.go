package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tempchat/internal/app/chat"
	"tempchat/internal/app/db"
	"tempchat/internal/app/storage"
	"tempchat/internal/app/store/badgerstore"
	"tempchat/internal/app/store/memory"
	"tempchat/internal/app/user"
	"tempchat/internal/app/ws"
	"tempchat/internal/configs"
	"tempchat/internal/handler"
	"tempchat/internal/pkg/logx"
)

const (
	shutdownTimeout = 5 * time.Second
	orphanTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// backend is the opened message store and user directory, plus how to release them.
type backend struct {
	store chat.Store
	users user.Directory
	close func()
}

func openBackend(ctx context.Context, cfg *configs.AppConfig) (*backend, error) {
	switch cfg.StoreDriver {
	case configs.StoreBadger:
		s, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return &backend{
			store: s,
			users: badgerstore.NewDirectory(s),
			close: func() {
				if err := s.Close(); err != nil {
					logx.Error(err, "Failed to close badger store")
				}
			},
		}, nil

	case configs.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return &backend{
			store: db.NewMessageStore(pool),
			users: db.NewUserDirectory(pool),
			close: pool.Close,
		}, nil

	default:
		return &backend{
			store: memory.New(),
			users: user.NewMemoryDirectory(),
			close: func() {},
		}, nil
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store_driver", cfg.StoreDriver).
		Bool("image_offload", cfg.ImageOffloadEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	var storageService storage.StorageService
	opts := chat.Options{
		MinSendInterval: cfg.MinSendInterval,
		HistoryLimit:    cfg.HistoryLimit,
	}
	if cfg.ImageOffloadEnabled() {
		storageService, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize image storage: %w", err)
		}
		opts.Images = storageService
	}

	hub := ws.NewHub()
	service := chat.NewService(be.store, be.users, hub, opts)

	// No connection can be live yet, so every on-disconnect message left behind by a
	// previous process is an orphan.
	orphanCtx, cancelOrphans := context.WithTimeout(ctx, orphanTimeout)
	purged, err := service.PurgeOrphaned(orphanCtx)
	cancelOrphans()
	if err != nil {
		logx.Error(err, "Failed to purge orphaned messages")
	} else if purged > 0 {
		logx.Info("Purged orphaned on-disconnect messages", "count", purged)
	}

	stopSweeper := chat.NewSweeper(service, cfg.SweepInterval).Start(ctx)

	limits := handler.NewLimiters()
	go limits.Guest.Run(ctx)
	go limits.Join.Run(ctx)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr: serverAddr,
		Handler: handler.Router(&handler.AppDeps{
			Config:         cfg,
			Service:        service,
			Hub:            hub,
			StorageService: storageService,
		}, limits),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logx.Info(fmt.Sprintf("TempChat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logx.Info("Received shutdown signal. Starting graceful shutdown...")
	case err := <-serverErr:
		stopSweeper()
		return fmt.Errorf("server failed to start: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	stopSweeper()
	hub.Shutdown("server shutting down")
	waitForDrain(shutdownCtx, hub)

	logx.Info("Server gracefully stopped.")
	return nil
}

// waitForDrain blocks until every connection handler has finished its disconnect work, so
// the backend is not closed underneath them.
func waitForDrain(ctx context.Context, hub *ws.Hub) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for hub.Len() > 0 {
		select {
		case <-ctx.Done():
			logx.Warn("Connections still open after shutdown timeout", "count", hub.Len())
			return
		case <-ticker.C:
		}
	}
}
