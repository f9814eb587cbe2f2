// Command server wires the Verikey backend: storage, domain services, the
// HTTP router and graceful shutdown. Business logic lives in the internal
// service packages; main only chooses implementations and connects them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"verikey/internal/audit"
	authmetrics "verikey/internal/auth/metrics"
	authservice "verikey/internal/auth/service"
	"verikey/internal/auth/store/refreshtoken"
	"verikey/internal/auth/store/revocation"
	"verikey/internal/auth/token"
	"verikey/internal/blob"
	identitymetrics "verikey/internal/identity/metrics"
	identityservice "verikey/internal/identity/service"
	userstore "verikey/internal/identity/store/user"
	keymetrics "verikey/internal/keys/metrics"
	keyservice "verikey/internal/keys/service"
	keystore "verikey/internal/keys/store/key"
	"verikey/internal/notify"
	"verikey/internal/platform/config"
	"verikey/internal/platform/httpserver"
	"verikey/internal/platform/logger"
	"verikey/internal/platform/metrics"
	"verikey/internal/platform/postgres"
	platformredis "verikey/internal/platform/redis"
	requestmetrics "verikey/internal/request/metrics"
	requestservice "verikey/internal/request/service"
	requeststore "verikey/internal/request/store/request"
	httptransport "verikey/internal/transport/http"
	verificationmetrics "verikey/internal/verification/metrics"
	verificationservice "verikey/internal/verification/service"
	verificationstore "verikey/internal/verification/store/verification"
)

const (
	shutdownTimeout      = 10 * time.Second
	auditInboxBuffer     = 256
	housekeepingInterval = time.Hour
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Env)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. An empty database URL keeps everything in memory, which is
	// how local development and the unit suites run.
	var (
		db                *sql.DB
		users             identityservice.UserStore
		keyStore          keyservice.KeyStore
		requestStore      requestservice.RequestStore
		verificationStore verificationservice.VerificationStore
		refreshStore      authservice.RefreshTokenStore
		auditStore        audit.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		users = userstore.NewPostgresStore(db)
		keyStore = keystore.NewPostgresStore(db)
		requestStore = requeststore.NewPostgresStore(db)
		verificationStore = verificationstore.NewPostgresStore(db)
		refreshStore = refreshtoken.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
	} else {
		log.Warn("VERIKEY_DATABASE_URL not set, using in-memory stores")
		users = userstore.NewInMemoryStore()
		keyStore = keystore.NewInMemoryStore()
		requestStore = requeststore.NewInMemoryStore()
		verificationStore = verificationstore.NewInMemoryStore()
		refreshStore = refreshtoken.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
	}

	// Token revocation list: Redis when configured, the database when only
	// Postgres is available, memory otherwise.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	var revocationList authservice.RevocationList
	switch {
	case redisClient != nil:
		defer redisClient.Close()
		revocationList = revocation.NewRedisList(redisClient.Client)
	case db != nil:
		revocationList = revocation.NewPostgresList(db)
	default:
		revocationList = revocation.NewInMemoryList()
	}

	// Blob storage for profile photos and verification documents.
	var blobStore identityservice.PhotoStore
	if cfg.Blob.Bucket != "" {
		s3Store, err := blob.NewS3Store(ctx, cfg.Blob)
		if err != nil {
			log.Error("failed to configure blob storage", "error", err)
			os.Exit(1)
		}
		blobStore = s3Store
	} else {
		log.Warn("VERIKEY_S3_BUCKET not set, storing blobs in memory")
		blobStore = blob.NewInMemoryStore()
	}

	// Audit trail is written off the request path; the worker drains the
	// inbox until shutdown.
	publisher := audit.NewAsyncPublisher(auditInboxBuffer)
	worker := audit.NewWorker(auditStore, publisher.Inbox(), log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	identityOpts := []identityservice.Option{
		identityservice.WithLogger(log),
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithPhotoStore(blobStore),
	}
	requestOpts := []requestservice.Option{
		requestservice.WithLogger(log),
		requestservice.WithMetrics(requestmetrics.New()),
		requestservice.WithAuditPublisher(publisher),
	}
	verificationOpts := []verificationservice.Option{
		verificationservice.WithLogger(log),
		verificationservice.WithMetrics(verificationmetrics.New()),
		verificationservice.WithAuditPublisher(publisher),
	}
	authOpts := []authservice.Option{
		authservice.WithLogger(log),
		authservice.WithMetrics(authmetrics.New()),
		authservice.WithAuditPublisher(publisher),
	}
	if db != nil {
		txRunner := postgres.NewTxRunner(db)
		identityOpts = append(identityOpts, identityservice.WithStoreTx(txRunner))
		requestOpts = append(requestOpts, requestservice.WithStoreTx(txRunner))
		verificationOpts = append(verificationOpts, verificationservice.WithStoreTx(txRunner))
		authOpts = append(authOpts, authservice.WithStoreTx(txRunner))
	}
	if cfg.Email.From != "" {
		notifier, err := notify.NewSESNotifier(ctx, cfg.Email)
		if err != nil {
			log.Error("failed to configure email notifications", "error", err)
			os.Exit(1)
		}
		requestOpts = append(requestOpts, requestservice.WithNotifier(notifier.WithLogger(log)))
	} else {
		log.Warn("VERIKEY_EMAIL_FROM not set, request notifications disabled")
	}

	identity := identityservice.New(users, identityOpts...)
	keys := keyservice.New(keyStore, identity,
		keyservice.WithLogger(log),
		keyservice.WithMetrics(keymetrics.New()),
		keyservice.WithAuditPublisher(publisher),
	)
	requests := requestservice.New(requestStore, identity, keys, requestOpts...)
	verifications := verificationservice.New(verificationStore, blobStore, identity, verificationOpts...)

	tokens := token.NewService(cfg.JWT.SigningKey, cfg.JWT.AccessTTL)
	auth := authservice.New(identity, tokens, refreshStore, revocationList, cfg.JWT.RefreshTTL, authOpts...)

	// Account deletion fans out into every engine; the engines depend on
	// identity, so the cycle closes here.
	identity.AttachDeletionCascades(keys, requests, auth, verifications)

	// Expired refresh tokens are rejected on use regardless; the sweep
	// just keeps the table from growing.
	go func() {
		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := auth.DeleteExpired(ctx); err != nil {
					log.Warn("refresh token sweep failed", "error", err)
				} else if n > 0 {
					log.Info("swept expired refresh tokens", "deleted", n)
				}
			}
		}
	}()

	router := httptransport.NewRouter(httptransport.Deps{
		Auth:           auth,
		Identity:       identity,
		Requests:       requests,
		Keys:           keys,
		Verifications:  verifications,
		Actors:         identity,
		Verifier:       tokens,
		Revocation:     auth,
		ReviewerEmails: cfg.ReviewerEmails,
		Logger:         log,
		Metrics:        metrics.NewHTTP(),
	})

	srv := httpserver.New(cfg.Addr, router)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting verikey server", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	stop()
	<-workerDone
}
