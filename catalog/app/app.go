package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ebookshare/catalog-service/catalog/config"
	"github.com/ebookshare/catalog-service/catalog/internal/blob"
	"github.com/ebookshare/catalog-service/catalog/internal/errs"
	"github.com/ebookshare/catalog-service/catalog/internal/fetcher"
	"github.com/ebookshare/catalog-service/catalog/internal/handler"
	"github.com/ebookshare/catalog-service/catalog/internal/metadata"
	"github.com/ebookshare/catalog-service/catalog/internal/model"
	"github.com/ebookshare/catalog-service/catalog/internal/repository"
	"github.com/ebookshare/catalog-service/catalog/internal/server"
	"github.com/ebookshare/catalog-service/catalog/internal/service"
	"github.com/ebookshare/catalog-service/catalog/migrations"
	"github.com/ebookshare/catalog-service/pkg/auth"
	"github.com/ebookshare/catalog-service/pkg/kafka"
	"github.com/ebookshare/catalog-service/pkg/logger"
	"github.com/ebookshare/catalog-service/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "catalog")
	ctx := context.Background()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	blobs, err := blob.New(ctx, cfg.Blob, log)
	if err != nil {
		log.Fatal("blob store init", zap.Error(err))
	}

	var producer sarama.SyncProducer
	if cfg.Kafka.Enabled() {
		if producer, err = kafka.NewProducer(cfg.Kafka); err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
	}

	svc := service.NewService(
		repo,
		blobs,
		fetcher.New(cfg.Fetch, log),
		metadata.New(log),
		kafka.NewEnqueuer(producer),
		log,
	)

	if err := bootstrapAdmin(ctx, cfg.Admin, repo, log); err != nil {
		log.Fatal("admin bootstrap", zap.Error(err))
	}

	h := handler.New(svc, []byte(cfg.JWTKey), log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	if producer != nil {
		_ = producer.Close()
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}

// bootstrapAdmin creates the configured admin user once; reruns are no-ops.
func bootstrapAdmin(ctx context.Context, cfg config.Admin, repo repository.Repository, log *zap.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	if _, err := repo.GetUserByEmail(ctx, cfg.Email); err == nil {
		return nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.Password)
	if err != nil {
		return err
	}
	if _, err := repo.CreateUser(ctx, model.User{
		Email:    cfg.Email,
		Name:     cfg.Name,
		Password: hash,
		IsAdmin:  true,
	}); err != nil && !errors.Is(err, errs.ErrDuplicate) {
		return err
	}
	log.Info("admin user bootstrapped", zap.String("email", cfg.Email))
	return nil
}
