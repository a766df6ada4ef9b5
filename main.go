package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/auth"
	"taskboard/boards"
	"taskboard/cache"
	"taskboard/config"
	controller "taskboard/controllers"
	"taskboard/github"
	"taskboard/hooks"
	"taskboard/keylock"
	"taskboard/membership"
	"taskboard/middleware"
	"taskboard/notifications"
	"taskboard/realtime"
	"taskboard/repository"
	"taskboard/routes"
	"taskboard/utils"
	"taskboard/worker"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := utils.InitLogging(cfg.Environment, cfg.LogLevel, cfg.SentryDSN); err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed")
	}
	defer utils.FlushSentry()

	log := utils.Logger("main")
	cfg.LogSummary(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := cfg.RedisClient()
	if redisClient != nil {
		defer redisClient.Close()
	}

	st, err := config.OpenStore(ctx, cfg, redisClient, utils.Logger("store"))
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	repo := repository.New(st)

	locks := keylock.New()
	registry := realtime.NewRegistry()
	gateway := realtime.NewGateway(registry, utils.Logger("gateway"))
	engine := notifications.NewEngine(repo, gateway, locks, utils.Logger("notifications"))
	dispatcher := hooks.NewDispatcher(utils.Logger("hooks"))

	mailer := utils.NewMailer(utils.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromName:  cfg.SMTP.FromName,
		FromEmail: cfg.SMTP.FromEmail,
		AppURL:    cfg.FrontendURL,
	}, utils.Logger("mailer"))

	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	members := membership.NewService(repo, engine, gateway, gateway, dispatcher, locks, mailer, utils.Logger("membership"))
	codes := auth.NewCodeService(repo, mailer, tokens, cfg.VerificationCodeTTL, utils.Logger("auth"))
	codes.OnSignup(members.ResolveEmailInvitations)

	oauth := github.NewOAuth(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.RedirectURI)
	accounts := github.NewAccounts(repo, oauth, cfg.EncryptionKey, utils.Logger("github"))

	boardService := boards.NewService(repo, engine, gateway, locks, accounts, utils.Logger("boards"))
	socket := realtime.NewSocketServer(registry, gateway, tokens, members, utils.Logger("socket"))

	responseCache := cache.New(cache.Config{
		TTL:           cfg.CacheTTL,
		MaxEntries:    cfg.CacheMaxEntries,
		SweepInterval: cfg.CacheSweepInterval,
	}, utils.Logger("cache"))
	go responseCache.Start(ctx)

	retention := worker.NewRetentionWorker(
		engine,
		time.Duration(cfg.NotificationRetentionDays)*24*time.Hour,
		time.Hour,
		utils.Logger("retention"),
	)
	go retention.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      "taskboard",
		ErrorHandler: apperr.ErrorHandler(!cfg.IsProduction()),
	})
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.FrontendURL)))

	routes.SetupRoutes(app, routes.Deps{
		Verifier:      tokens,
		Cache:         responseCache,
		Socket:        socket,
		InviteLimiter: middleware.InviteRateLimiter(cfg.InviteRateLimit, redisClient),

		Auth:          controller.NewAuthController(codes, tokens, repo, accounts, cfg.FrontendURL, cfg.IsProduction(), utils.Logger("auth")),
		Boards:        controller.NewBoardController(boardService, members),
		Cards:         controller.NewCardController(boardService),
		Tasks:         controller.NewTaskController(boardService),
		Notifications: controller.NewNotificationController(engine),
		GitHub:        controller.NewGitHubController(accounts),
		System:        controller.NewSystemController(responseCache, registry, version),
	})

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown failed")
		}
	}()

	log.WithField("port", cfg.ServerPort).Info("Server starting")
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.WithError(err).Error("Server stopped")
	}

	// let post-commit hooks (invitation emails, notifications) finish
	dispatcher.Wait()
	log.Info("Server exited")
}
