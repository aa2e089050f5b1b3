package router

import (
	"github.com/gofiber/fiber/v2"

	"tribute-gateway/app/controllers"
)

// Router is one installable route group.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, webhooks *controllers.WebhookController) {
	setup(app, NewHttpRouter(webhooks))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
