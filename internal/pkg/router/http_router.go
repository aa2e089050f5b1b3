package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"tribute-gateway/app/controllers"
)

type HttpRouter struct {
	webhooks *controllers.WebhookController
}

func NewHttpRouter(webhooks *controllers.WebhookController) *HttpRouter {
	return &HttpRouter{webhooks: webhooks}
}

func (h *HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", controllers.HandleHealth)

	// Provider webhooks (no CSRF, signature-verified in controller). The
	// limiter shields the handler from runaway redelivery loops; legitimate
	// retry bursts stay far below it.
	webhooks := app.Group("/webhook", limiter.New(limiter.Config{Max: 120}))
	webhooks.Post("/tribute", h.webhooks.HandleTributeWebhook)
}
