package auth

import (
	"go.uber.org/fx"

	"github.com/avoray/ordersync/internal/config"
)

// Module provides authentication primitives via fx.
var Module = fx.Options(
	fx.Provide(newSignatureVerifier),
	fx.Provide(newAPIKeyVerifier),
)

type verifierParams struct {
	fx.In

	Config *config.Config
}

func newSignatureVerifier(p verifierParams) *HMACVerifier {
	return NewHMACVerifier(p.Config.WebhookSecret)
}

func newAPIKeyVerifier(p verifierParams) (*APIKeyVerifier, error) {
	return NewAPIKeyVerifier(p.Config.AdminAPIKey)
}
