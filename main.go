package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"civicanchor-be/aggregator"
	"civicanchor-be/config"
	"civicanchor-be/controllers"
	"civicanchor-be/localstore"
	"civicanchor-be/logger"
	"civicanchor-be/metrics"
	"civicanchor-be/middlewares"
	"civicanchor-be/models"
	"civicanchor-be/planner"
	"civicanchor-be/remote"
	"civicanchor-be/routes"
	"civicanchor-be/stream"
)

func main() {
	loadedEnv := config.LoadDotEnv()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	if !loadedEnv {
		log.Info("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store   *remote.Store
		anchors planner.Remote
		actions controllers.ActionRecorder

		issuesFeed  stream.Listener[models.AnchorRecord]
		surfaceFeed stream.Listener[models.AnchorRecord]
		actionsFeed stream.Listener[models.AuthorityAction]
	)
	client, db, err := config.ConnectDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Warn("mongodb_unavailable", "error", err)
	} else {
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Error("mongodb_disconnect_failed", "error", err)
			}
		}()
		log.Info("mongodb_connected", "database", cfg.MongoDatabase)
		store = remote.New(db,
			remote.WithLogger(log),
			remote.WithTimeout(cfg.RemoteTimeout),
			remote.WithPollInterval(cfg.ListenPollInterval),
		)
		if err := store.EnsureIndexes(ctx); err != nil {
			log.Warn("mongodb_index_failed", "error", err)
		}
		anchors, actions = store, store
		issuesFeed, surfaceFeed, actionsFeed = store.IssuesListener(), store.SurfaceListener(), store.ActionsListener()
	}

	var counter middlewares.Counter
	rdb, err := config.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis_unavailable", "error", err)
	} else if rdb != nil {
		defer rdb.Close()
		log.Info("redis_connected", "addr", cfg.RedisAddress)
		counter = middlewares.RedisCounter{Client: rdb}
	}

	cache := localstore.NewCache(cfg.DataDir, localstore.WithLogger(log))
	pending := localstore.NewPendingQueue(cfg.DataDir, localstore.WithLogger(log))
	plan := planner.New(anchors, cache, pending,
		planner.WithLogger(log),
		planner.WithUploadTimeout(cfg.RemoteTimeout),
	)

	agg := aggregator.New(issuesFeed, surfaceFeed, actionsFeed, aggregator.WithLogger(log))
	if store == nil {
		// Without a remote source the dashboard reflects what this node wrote.
		if cached, err := cache.Load(); err == nil {
			agg.UpdateIssues(cached)
		}
	} else if err := agg.Start(ctx); err != nil {
		log.Error("aggregator_start_failed", "error", err)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(log))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	limit := middlewares.SubmitRateLimiter(counter, cfg.RateLimitPrefix, cfg.SubmitRateLimit, log)
	routes.AnchorRoutes(r, controllers.NewAnchorController(plan, cfg.RemoteTimeout, log), limit)
	routes.ImpactRoutes(r, controllers.NewImpactController(agg, actions, log))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	go func() {
		log.Info("server_listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting_down")

	// Stop the aggregator first so open SSE streams see their channel close.
	agg.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", "error", err)
	}
	plan.Wait()
}

func corsConfig(origins []string) cors.Config {
	cc := cors.DefaultConfig()
	cc.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	cc.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	if len(origins) == 1 && origins[0] == "*" {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}
