package webauthn

import (
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/stagepass/marketplace/internal/infra/config"
)

// New builds the relying party used for passkey ceremonies.
func New(cfg config.WebAuthnSettings) (*webauthn.WebAuthn, error) {
	wconfig := &webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
			UserVerification:        protocol.VerificationPreferred,
		},
		Timeouts: webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce: true,
				Timeout: 2 * time.Minute,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce: true,
				Timeout: 2 * time.Minute,
			},
		},
	}

	rp, err := webauthn.New(wconfig)
	if err != nil {
		return nil, fmt.Errorf("create webauthn relying party: %w", err)
	}

	return rp, nil
}
