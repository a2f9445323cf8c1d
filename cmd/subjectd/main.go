// Command subjectd serves the subject segmentation and retrieval engine over
// HTTP.
//
//	@title			Subject Engine API
//	@version		1.0
//	@description	Segments channel conversations into subjects and serves retrieval context.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-subject-engine/internal/config"
	httpapi "github.com/tbourn/go-subject-engine/internal/http"
	"github.com/tbourn/go-subject-engine/internal/llm"
	"github.com/tbourn/go-subject-engine/internal/observability"
	"github.com/tbourn/go-subject-engine/internal/repo"
	"github.com/tbourn/go-subject-engine/internal/services"
	"github.com/tbourn/go-subject-engine/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// idempotencySweepEvery is how often expired idempotency records are purged.
const idempotencySweepEvery = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("subjectd exited")
	}
}

func run() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName)
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version,
		attribute.String("db.system", cfg.DB.Driver))
	if err != nil {
		return err
	}

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		DSN:     cfg.DB.DSN,
		Tracing: cfg.OTEL.Enabled,
	})
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	var gen services.Generator = llm.Noop{}
	if cfg.LLM.Enabled() {
		g, err := llm.NewOpenAIGenerator(llm.Options{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, log.With().Str("component", "llm").Logger())
		if err != nil {
			return err
		}
		gen = g
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, metadata synthesis disabled")
	}

	store, err := services.NewSettingsStore(cfg.Engine)
	if err != nil {
		return err
	}
	svc := services.NewSubjectService(db, store, gen, log.With().Str("component", "engine").Logger())
	svc.MaxContentRunes = cfg.MaxContentRunes
	svc.TitleLocale = sysutil.ParseLocale(cfg.TitleLocale)

	r := gin.New()
	httpapi.RegisterRoutes(r, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepIdempotency(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
		// Drains queued metadata and merge jobs.
		if err := svc.Close(sctx); err != nil {
			errs = append(errs, err)
		}
		if err := shutdownOTel(sctx); err != nil {
			errs = append(errs, err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func sweepIdempotency(ctx context.Context, svc *services.SubjectService) {
	t := time.NewTicker(idempotencySweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, svc.DB, now)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("idempotency sweep")
			}
		}
	}
}
