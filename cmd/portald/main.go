package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"community-portal/config"
	"community-portal/internal/api"
	"community-portal/internal/chat"
	"community-portal/internal/credential"
	"community-portal/internal/db"
	"community-portal/internal/events"
	"community-portal/internal/localstore"
	"community-portal/internal/logging"
	"community-portal/internal/notification"
	"community-portal/internal/panel"
	"community-portal/internal/parse"
	"community-portal/internal/realtime"
	"community-portal/internal/realtime/gcppubsub"
	"community-portal/internal/realtime/hub"
	"community-portal/internal/remote"
	"community-portal/internal/remote/gormsvc"
	"community-portal/internal/remote/rest"
	"community-portal/internal/reminder"
	"community-portal/internal/session"
	"community-portal/internal/shell"
	"community-portal/internal/store"
	"community-portal/internal/view"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[ERROR] failed to load configuration from %s: %v", configPath, err)
	}
	logging.Setup(cfg.Log.Level, os.Stdout)
	logger := logging.New("daemon")
	logger.Printf("[INFO] configuration loaded from %s", configPath)

	offsets, err := parse.ParseOffsets(cfg.Reminders.Offsets)
	if err != nil {
		logger.Fatalf("[ERROR] invalid reminder offsets: %v", err)
	}
	loc := cfg.Location()

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local profile storage
	profileDB, err := db.OpenLocal(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("[ERROR] failed to open profile database: %v", err)
	}
	var backing localstore.Store = localstore.NewGormStore(profileDB)
	if cfg.Storage.Path == "" {
		backing = localstore.NewMemoryStore()
		logger.Println("[WARN] storage.path is empty; the profile will not survive a restart")
	}
	profile := localstore.NewNamespaced(cfg.Storage.KeyPrefix, backing)
	targets := store.NewGormStore(profileDB)

	tokens := openTokenCache(cfg, profile, logger)

	// Remote service and realtime transport
	svc, transport, closeRemote, err := openRemote(ctx, cfg, loc)
	if err != nil {
		logger.Fatalf("[ERROR] failed to set up remote service: %v", err)
	}
	defer closeRemote()

	sess := session.New(svc, tokens, cfg.Remote.JWTSecret, logging.New("session"))
	signIn(ctx, sess, cfg.Remote.AccessToken, logger)
	go func() {
		if err := sess.Connect(ctx, cfg.Readiness.PollInterval, cfg.Readiness.MaxAttempts); err != nil {
			logger.Printf("[ERROR] %v", err)
		}
	}()

	// Delivery
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}
	senders := buildSenders(ctx, cfg, targets, webpushOptions, logger)
	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, logging.New("delivery"), senders...)
	pool.Start(ctx)

	// Controllers
	feed := view.NewFeed()
	toasts := view.NewToasts(time.Duration(cfg.Reminders.ToastTTLSeconds)*time.Second, feed)
	scheduler := reminder.NewScheduler(profile, logging.New("reminders"), reminder.WithRetention(cfg.Reminders.Retention))

	notifications := panel.New(panel.Deps{
		Probe:       sess.Handle,
		Interval:    cfg.Readiness.PollInterval,
		MaxAttempts: cfg.Readiness.MaxAttempts,
		Transport:   transport,
		Toasts:      toasts,
		Feed:        feed,
		Push:        pool,
		Logger:      logging.New(panel.Name),
	})
	messages := chat.New(chat.Deps{
		Probe:       sess.Handle,
		Interval:    cfg.Readiness.PollInterval,
		MaxAttempts: cfg.Readiness.MaxAttempts,
		Transport:   transport,
		Toasts:      toasts,
		Feed:        feed,
		Logger:      logging.New(chat.Name),
	})
	calendar := events.New(events.Deps{
		Probe:       sess.Handle,
		Interval:    cfg.Readiness.PollInterval,
		MaxAttempts: cfg.Readiness.MaxAttempts,
		Reminders:   scheduler,
		Offsets:     offsets,
		Location:    loc,
		Toasts:      toasts,
		Feed:        feed,
		Logger:      logging.New(events.Name),
	})

	sh := shell.New(shell.Options{
		Controllers:      []shell.Controller{notifications, messages, calendar},
		Reminders:        scheduler,
		TickInterval:     cfg.Reminders.TickInterval,
		FallbackInterval: time.Duration(cfg.Realtime.FallbackRefreshSeconds) * time.Second,
		Push:             pool,
		Toasts:           toasts,
		Logger:           logging.New("shell"),
	})
	sh.Start(ctx)

	// Initialize router
	router := api.NewRouter(ctx, api.Options{
		Notifications: notifications,
		Chat:          messages,
		Events:        calendar,
		Reminders:     scheduler,
		Toasts:        toasts,
		Feed:          feed,
		Drafts:        localstore.NewDrafts(profile),
		Store:         targets,
		WebPush:       webpushOptions,
		RateLimit:     cfg.Server.RateLimitPerSec,
		Burst:         cfg.Server.RateLimitBurst,
		CacheTTL:      time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Logger:        logging.New("api"),
	})
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("[INFO] HTTP server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("[ERROR] HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("[INFO] Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("[ERROR] HTTP server Shutdown: %v", err)
	}
	if err := sh.Shutdown(); err != nil {
		logger.Printf("[WARN] Closing subscriptions: %v", err)
	}
	cancel()

	logger.Println("[INFO] Portal daemon stopped")
}

func openTokenCache(cfg *config.Config, profile localstore.Store, logger *log.Logger) credential.TokenCache {
	if !cfg.Storage.UseKeyring {
		return credential.NewStoreCache(profile)
	}
	ring, err := credential.OpenKeyring(cfg.Storage.KeyringDir)
	if err != nil {
		logger.Printf("[WARN] keyring unavailable, caching the session in the profile: %v", err)
		return credential.NewStoreCache(profile)
	}
	return ring
}

// openRemote builds the configured backend and the realtime transport its
// changes arrive on. The returned func releases both.
func openRemote(ctx context.Context, cfg *config.Config, loc *time.Location) (remote.Service, realtime.Transport, func(), error) {
	var (
		svc       remote.Service
		transport realtime.Transport
		closers   []func() error
	)

	var broker *hub.Hub
	if cfg.Realtime.Transport == "pubsub" {
		t, err := gcppubsub.New(ctx, cfg.Realtime.ProjectID, cfg.Realtime.SubscriptionPrefix, cfg.Realtime.CredentialsFile, logging.New("pubsub"))
		if err != nil {
			return nil, nil, nil, err
		}
		transport = t
		closers = append(closers, t.Close)
	} else {
		broker = hub.New()
		transport = broker
	}

	switch cfg.Remote.Backend {
	case "postgres":
		gdb, err := db.OpenRemote(cfg.Remote.DSN, db.PoolConfig{})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := gormsvc.Migrate(gdb); err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, closeDB(gdb))
		var pub gormsvc.Publisher = noopPublisher{}
		if broker != nil {
			pub = broker
		}
		svc = gormsvc.New(gdb, pub, logging.New("remote"))
	case "rest":
		c, err := rest.New(rest.Options{
			BaseURL:     cfg.Remote.URL,
			APIKey:      cfg.Remote.APIKey,
			AccessToken: cfg.Remote.AccessToken,
			Location:    loc,
			HTTPProxy:   cfg.Remote.HTTPProxy,
		}, logging.New("remote"))
		if err != nil {
			return nil, nil, nil, err
		}
		svc = c
	default:
		return nil, nil, nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}

	release := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("[WARN] closing remote: %v", err)
			}
		}
	}
	return svc, transport, release, nil
}

func closeDB(gdb *gorm.DB) func() error {
	return func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

// noopPublisher is used when changes arrive over Pub/Sub instead of the
// in-process hub.
type noopPublisher struct{}

func (noopPublisher) Publish(realtime.Event) {}

func signIn(ctx context.Context, sess *session.Context, token string, logger *log.Logger) {
	if token != "" {
		if _, err := sess.SignIn(ctx, token); err != nil {
			logger.Printf("[ERROR] access token rejected: %v", err)
		}
		return
	}
	if _, err := sess.Restore(ctx); err != nil {
		if errors.Is(err, credential.ErrNoToken) {
			logger.Println("[WARN] not signed in; set PORTAL_ACCESS_TOKEN")
			return
		}
		logger.Printf("[WARN] cached session unusable: %v", err)
	}
}

func buildSenders(ctx context.Context, cfg *config.Config, targets store.Store, opts *webpush.Options, logger *log.Logger) []notification.Sender {
	var senders []notification.Sender
	if opts != nil {
		senders = append(senders, notification.NewWebPushSender(targets, opts, logging.New("webpush")))
	} else {
		logger.Println("[WARN] VAPID keys are not configured; web push disabled")
	}

	if cfg.FCM.Enabled {
		client, err := notification.NewFCMClient(ctx, cfg.FCM.CredentialsFile)
		if err != nil {
			logger.Printf("[ERROR] FCM disabled: %v", err)
		} else {
			senders = append(senders, notification.NewFCMSender(client, targets, logging.New("fcm")))
		}
	}

	if cfg.Desktop.Enabled {
		desktop, err := notification.NewDesktopSender(cfg.Desktop.AppName, logging.New("desktop"))
		if err != nil {
			logger.Printf("[ERROR] desktop notifications disabled: %v", err)
		} else {
			senders = append(senders, desktop)
		}
	}
	return senders
}
