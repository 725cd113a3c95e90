package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nosota/mwallet/internal/config"
	"github.com/nosota/mwallet/internal/infra"
	"github.com/nosota/mwallet/internal/joblock"
	"github.com/nosota/mwallet/internal/ledger"
	"github.com/nosota/mwallet/internal/logging"
	"github.com/nosota/mwallet/internal/notification"
	"github.com/nosota/mwallet/internal/wallet"
)

// The batch runner is the only scheduler in the system: the ledger core
// exposes no background threads of its own. Each tick walks every wallet,
// takes the wallet's job lock and runs one tier-maintenance pass. A wallet
// whose lock is held is skipped and picked up on a later tick.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" || cfg.RedisURL == "" {
		fmt.Fprintln(os.Stderr, "batch runner requires DATABASE_URL and REDIS_URL")
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	store := ledger.NewPostgres(db)
	repo := wallet.NewPostgresRepository(db)
	locker := joblock.New(cache, cfg.JobLockTTL)
	notifier := notification.NewLoggerNotifier(logger)

	logger.Info("batch runner started",
		"snapshot_interval", cfg.SnapshotInterval.String(),
		"archive_interval", cfg.ArchiveInterval.String(),
		"archive_age", cfg.ArchiveAge.String())

	snapshotTicker := time.NewTicker(cfg.SnapshotInterval)
	defer snapshotTicker.Stop()
	archiveTicker := time.NewTicker(cfg.ArchiveInterval)
	defer archiveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("batch runner stopped")
			return
		case <-snapshotTicker.C:
			runSnapshotPass(ctx, logger, repo, store, locker)
		case <-archiveTicker.C:
			runArchivePass(ctx, logger, repo, store, locker, notifier, cfg.ArchiveAge)
		}
	}
}

func runSnapshotPass(ctx context.Context, logger *slog.Logger, repo wallet.Repository, store ledger.Store, locker *joblock.Locker) {
	ids, err := repo.List(ctx)
	if err != nil {
		logger.Error("list wallets", "error", err)
		return
	}

	for _, walletID := range ids {
		release, ok, err := locker.Acquire(ctx, walletID)
		if err != nil {
			logger.Error("acquire job lock", "wallet_id", walletID, "error", err)
			continue
		}
		if !ok {
			logger.Info("wallet busy, skipping snapshot", "wallet_id", walletID)
			continue
		}

		moved, err := store.CaptureDailySnapshot(ctx, walletID)
		release()
		if err != nil {
			// Verification failures roll the unit back; the pass is safe to
			// retry on the next tick.
			logger.Error("snapshot migration failed", "wallet_id", walletID, "error", err)
			continue
		}
		if moved > 0 {
			logger.Info("snapshot migration complete", "wallet_id", walletID, "rows", moved)
		}
	}
}

func runArchivePass(ctx context.Context, logger *slog.Logger, repo wallet.Repository, store ledger.Store, locker *joblock.Locker, notifier notification.Notifier, age time.Duration) {
	ids, err := repo.List(ctx)
	if err != nil {
		logger.Error("list wallets", "error", err)
		return
	}
	cutoff := time.Now().UTC().Add(-age)

	for _, walletID := range ids {
		release, ok, err := locker.Acquire(ctx, walletID)
		if err != nil {
			logger.Error("acquire job lock", "wallet_id", walletID, "error", err)
			continue
		}
		if !ok {
			logger.Info("wallet busy, skipping archive", "wallet_id", walletID)
			continue
		}

		res, err := store.ArchiveOldSnapshots(ctx, walletID, cutoff)
		release()
		if err != nil {
			if errors.Is(err, ledger.ErrVerificationFailed) {
				logger.Error("archive verification failed, unit rolled back", "wallet_id", walletID, "error", err)
			} else {
				logger.Error("archive failed", "wallet_id", walletID, "error", err)
			}
			continue
		}
		if res.Skipped {
			continue
		}

		logger.Info("archive complete",
			"wallet_id", walletID,
			"checkpoint_id", res.CheckpointID,
			"amount", res.Amount,
			"rows", res.RowsArchived,
			"groups", res.GroupsLinked)
		_ = notifier.Send(ctx, notification.Message{
			Kind:        notification.KindCheckpoint,
			Destination: walletID,
			Body:        fmt.Sprintf("checkpoint %s consolidates %d rows", res.CheckpointID, res.RowsArchived),
		})
	}
}
