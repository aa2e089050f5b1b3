package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tribute-gateway/app/controllers"
	"tribute-gateway/app/repository"
	"tribute-gateway/internal/pkg/cache"
	"tribute-gateway/internal/pkg/database"
	"tribute-gateway/internal/pkg/env"
	"tribute-gateway/internal/pkg/notify"
	"tribute-gateway/internal/pkg/panel"
	"tribute-gateway/internal/pkg/referral"
	"tribute-gateway/internal/pkg/reminder"
	"tribute-gateway/internal/pkg/router"
	"tribute-gateway/internal/pkg/subscription"
	"tribute-gateway/internal/pkg/tribute"
)

func main() {
	app, shutdown := NewApplication()
	defer shutdown()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

// NewApplication wires the full webhook gateway: storage, cache, domain
// services, Telegram notifier and the deferred reminder scheduler. The
// returned shutdown func stops background work.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	factory := repository.NewFactory(db)
	repository.SetGlobalFactory(factory)
	repos := factory.GetRepositories()

	tributeCfg := tribute.NewConfigFromEnv()

	activator := subscription.NewServiceFromEnv(repos.Subscription)
	bonuses := referral.NewServiceFromEnv(repos.User, repos.Subscription)

	opts := []tribute.Option{
		tribute.WithDedupCache(tribute.NewRedisDedupCache(48 * time.Hour)),
	}

	var shutdown func()
	notifier, err := notify.NewTelegramNotifierFromEnv()
	if err != nil {
		// Payments must be accepted even when the bot is unreachable;
		// notifications are best-effort by contract.
		fiberlog.Warnf("telegram notifier unavailable, notifications disabled: %v", err)
		shutdown = func() {}
	} else {
		opts = append(opts, tribute.WithNotifier(notifier))

		panelClient := panel.NewClientFromEnv()
		reminders := reminder.NewScheduler(
			panelClient,
			func(ctx context.Context, job reminder.Job) error {
				return notifier.SendNotConnectedReminder(ctx, job.UserID, job.ConnectURL)
			},
			time.Duration(env.GetInt("REMINDER_MIN_DELAY_MINUTES", 5))*time.Minute,
			time.Duration(env.GetInt("REMINDER_MAX_DELAY_MINUTES", 10))*time.Minute,
		).WithDedup(reminder.RedisDedup(24 * time.Hour))
		reminders.Start()
		opts = append(opts, tribute.WithReminderScheduler(reminders))
		shutdown = reminders.Stop
	}

	svc := tribute.NewService(tributeCfg, db, repos, activator, bonuses, opts...)
	webhooks := controllers.NewWebhookController(tributeCfg, svc)

	app := fiber.New(fiber.Config{
		AppName:   "tribute-gateway",
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	router.InstallRouter(app, webhooks)

	return app, shutdown
}
