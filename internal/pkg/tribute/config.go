package tribute

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"tribute-gateway/app/models"
	"tribute-gateway/internal/pkg/env"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request body.
const SignatureHeader = "trbt-signature"

const (
	SaleModeSubscription = "subscription"
	SaleModeTraffic      = "traffic"
)

// maxConfigurableMonths bounds the TRIBUTE_LINK_<months> env scan.
const maxConfigurableMonths = 36

// Config holds the Tribute provider settings. Tribute works with
// pre-configured payment links per subscription duration; purchases come back
// asynchronously through the webhook.
type Config struct {
	Enabled bool
	APIKey  string
	// Links maps subscription months to the pre-configured payment link.
	Links map[int]string
	// MinorUnitCurrencies lists currencies whose webhook amounts arrive in
	// minor units (cents) and must be divided by 100.
	MinorUnitCurrencies map[string]struct{}
	TrafficSaleMode     bool
	DefaultLanguage     string
	DefaultCurrency     string
}

// NewConfigFromEnv reads the TRIBUTE_* environment and logs degraded
// configurations the same way a missing secret is logged: as a warning, not a
// startup failure.
func NewConfigFromEnv() *Config {
	cfg := &Config{
		Enabled:             env.GetBool("TRIBUTE_ENABLED", false),
		APIKey:              strings.TrimSpace(env.GetEnv("TRIBUTE_API_KEY", "")),
		Links:               map[int]string{},
		MinorUnitCurrencies: map[string]struct{}{},
		TrafficSaleMode:     env.GetBool("TRAFFIC_SALE_MODE", false),
		DefaultLanguage:     env.GetEnv("DEFAULT_LANGUAGE", models.DefaultLanguage),
		DefaultCurrency:     strings.ToUpper(env.GetEnv("DEFAULT_CURRENCY", "USD")),
	}

	for months := 1; months <= maxConfigurableMonths; months++ {
		link := strings.TrimSpace(env.GetEnv(fmt.Sprintf("TRIBUTE_LINK_%d", months), ""))
		if link != "" {
			cfg.Links[months] = link
		}
	}

	for _, cur := range strings.Split(env.GetEnv("TRIBUTE_MINOR_UNIT_CURRENCIES", "USD,EUR"), ",") {
		cur = strings.ToUpper(strings.TrimSpace(cur))
		if cur != "" {
			cfg.MinorUnitCurrencies[cur] = struct{}{}
		}
	}

	if cfg.Enabled {
		if cfg.APIKey == "" {
			log.Warn("tribute: TRIBUTE_API_KEY is not set, webhook signature verification disabled")
		}
		if len(cfg.Links) == 0 {
			log.Warn("tribute: no TRIBUTE_LINK_* configured, product-to-duration mapping will fall back to 1 month")
		}
	}

	return cfg
}

// PaymentLink returns the pre-configured payment link for the given duration,
// or empty when none is configured.
func (c *Config) PaymentLink(months int) string {
	return c.Links[months]
}

// IsMinorUnitCurrency reports whether amounts in the given currency arrive in
// minor units.
func (c *Config) IsMinorUnitCurrency(currency string) bool {
	_, ok := c.MinorUnitCurrencies[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}
