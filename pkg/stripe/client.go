package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/craftconnect/marketplace-backend/pkg/config"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const signingSecretPrefix = "whsec_"

var (
	errSecretRequired = errors.New("stripe webhook secret is required")
	errSecretFormat   = errors.New("stripe webhook secret must start with " + signingSecretPrefix)
)

// Client verifies Stripe webhook deliveries against the endpoint signing secret.
type Client struct {
	signingSecret string
}

// NewClient validates the configured signing secret.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	secret := strings.TrimSpace(cfg.StripeWebhookSecret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !strings.HasPrefix(secret, signingSecretPrefix) {
		return nil, errSecretFormat
	}

	if logg != nil {
		logg.Info(ctx, "stripe webhook verifier initialized")
	}
	return &Client{signingSecret: secret}, nil
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// VerifyEvent checks the Stripe-Signature header and decodes the event.
// Events rendered for another API version are accepted.
func (c *Client) VerifyEvent(payload []byte, header string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, header, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
