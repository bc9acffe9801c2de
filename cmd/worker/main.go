package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/employee"
	"faceattend/internal/faceclient"
	"faceattend/internal/logger"
	"faceattend/internal/photodir"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker recomputes embeddings after reference photos change and runs the
// periodic photo-directory reconcile pass.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.EmbeddingDim)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "faceattend:embed_refresh")
	}

	photos, err := photodir.New(cfg.PhotoDir)
	if err != nil {
		log.Fatal().Err(err).Msg("photo dir init failed")
	}

	repo := employee.NewRepository(db.Client)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.FaceTimeout)

	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Warn().Err(err).Msg("face service not available, will retry per job")
		} else {
			log.Info().Msg("face service connected")
		}
	}

	go reconcileLoop(ctx, cfg, repo, photos, q, log)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != attendance.EmbedRefreshType {
			continue
		}
		refreshEmbedding(ctx, string(msg.Body), repo, photos, face, log)
		time.Sleep(10 * time.Millisecond)
	}

	log.Info().Msg("worker stopped")
}

// refreshEmbedding re-derives an employee's embedding from the current
// reference photo. Failures leave the vector NULL; the reconcile loop
// re-enqueues those.
func refreshEmbedding(ctx context.Context, employeeID string, repo *employee.Repository, photos *photodir.Dir, face *faceclient.Client, log zerolog.Logger) {
	image, err := photos.Read(employeeID)
	if err != nil {
		log.Error().Err(err).Str("employee_id", employeeID).Msg("reference photo read failed")
		return
	}

	result, err := face.Embed(ctx, image)
	if err != nil {
		log.Error().Err(err).Str("employee_id", employeeID).Msg("embed failed")
		return
	}

	if err := repo.UpdateEmbedding(ctx, employeeID, result.Embedding); err != nil {
		log.Error().Err(err).Str("employee_id", employeeID).Msg("embedding update failed")
		return
	}
	log.Info().Str("employee_id", employeeID).Float64("score", result.Score).Msg("embedding refreshed")
}

// reconcileLoop periodically diffs the photo directory against the employee
// store and re-enqueues rows whose embedding is missing.
func reconcileLoop(ctx context.Context, cfg config.App, repo *employee.Repository, photos *photodir.Dir, q queue.Queue, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		reconcileOnce(ctx, cfg, repo, photos, q, log)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func reconcileOnce(ctx context.Context, cfg config.App, repo *employee.Repository, photos *photodir.Dir, q queue.Queue, log zerolog.Logger) {
	ids, err := repo.ListIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile: employee list failed")
		return
	}
	rep, err := photos.Reconcile(ids, cfg.PruneOrphans)
	if err != nil {
		log.Error().Err(err).Msg("reconcile: directory diff failed")
		return
	}
	if !rep.Clean() {
		log.Warn().
			Strs("missing_photos", rep.MissingPhotos).
			Strs("orphan_photos", rep.OrphanPhotos).
			Strs("pruned", rep.Pruned).
			Msg("photo directory drift detected")
	}

	stale, err := repo.ListMissingEmbeddings(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile: stale embedding list failed")
		return
	}
	for _, id := range stale {
		if !photos.Exists(id) {
			continue
		}
		if err := q.Publish(ctx, queue.Message{Type: attendance.EmbedRefreshType, Body: []byte(id)}); err != nil {
			log.Warn().Err(err).Str("employee_id", id).Msg("reconcile: enqueue failed")
		}
	}
	if len(stale) > 0 {
		log.Info().Int("count", len(stale)).Msg("re-enqueued stale embeddings")
	}
}
