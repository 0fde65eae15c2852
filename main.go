package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"careplan-api/api"
	"careplan-api/events"
	"careplan-api/ingest"
	"careplan-api/planbook"
	"careplan-api/schedule"
	"careplan-api/storage"
	"careplan-api/workflow"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	eventsTableName := os.Getenv("EVENTS_TABLE")
	templatesTableName := os.Getenv("TEMPLATES_TABLE")
	clientsTableName := os.Getenv("CLIENTS_TABLE")
	changeQueueName := os.Getenv("CHANGE_QUEUE")
	if connStr == "" || eventsTableName == "" || templatesTableName == "" || clientsTableName == "" || changeQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, eventsTableName, templatesTableName, clientsTableName, changeQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	dedupeTTL := 24 * time.Hour
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid DEDUPER_TTL: %v", err)
		}
		dedupeTTL = d
	}
	deduper := api.NewRedisDeduper(rc, dedupeTTL)

	cacheTTL := 5 * time.Minute
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			log.Fatalf("invalid CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	cached := storage.NewCache(store, rc, cacheTTL)

	var auth *api.Auth
	if secret := os.Getenv("AUTH_TEST_SECRET"); secret != "" {
		auth = api.NewTestAuth([]byte(secret))
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	logger := log.New()

	hub := schedule.NewHub()
	templates := planbook.NewStore()
	loader := &ingest.Loader{
		Source:    cached,
		Schedules: hub,
		Templates: templates,
		Logger:    logger,
	}
	applier := &workflow.Applier{
		Schedules:       hub,
		Templates:       templates,
		Logger:          logger,
		AnchorToWeekday: os.Getenv("ANCHOR_TO_WEEKDAY") == "1",
	}

	var notifier api.Notifier = api.NopNotifier{}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		pub, err := events.NewPublisher(natsURL, logger)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer pub.Close()
		notifier = pub
	}

	// Pre-warm the configured agencies so the first request is served from
	// memory instead of a cold fetch.
	if v := os.Getenv("AGENCY_IDS"); v != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		for _, agencyID := range strings.Split(v, ",") {
			agencyID = strings.TrimSpace(agencyID)
			if agencyID == "" {
				continue
			}
			if err := loader.Refresh(ctx, agencyID); err != nil {
				logger.WithField("agency", agencyID).WithError(err).Warn("initial refresh failed")
			}
		}
		cancel()
	}

	refreshSpec := os.Getenv("REFRESH_CRON")
	if refreshSpec == "" {
		refreshSpec = "*/5 * * * *"
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(refreshSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		loader.RefreshAll(ctx)
	}); err != nil {
		log.Fatalf("invalid REFRESH_CRON: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.Decompress())
	e.Use(echoprometheus.NewMiddleware("careplan_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Store:     cached,
		Auth:      auth,
		Schedules: hub,
		Templates: templates,
		Applier:   applier,
		Refresher: loader,
		Deduper:   deduper,
		Notifier:  notifier,
		Logger:    logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
