// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/platform/mailer"
	"github.com/nerdhq/gatekeeper/pkg/uuid"
)

// # Activation Tokens

// ActivationTokenTTL is how long a freshly minted activation token stays
// redeemable.
const ActivationTokenTTL = 15 * time.Minute

// ActivationToken is a one-time proof of email ownership.
//
// State machine: CREATED → VALID (while now < ExpiresAt and UsedAt is nil)
// → USED (terminal, UsedAt set exactly once) or EXPIRED (terminal, implicit
// via time). Tokens are never deleted; consumed and expired rows remain as
// an audit trail. The ID doubles as the secret mailed to the user, so it is
// a fully random UUIDv4, not a time-ordered v7.
type ActivationToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	UsedAt    *time.Time `json:"used_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// errActivationTokenNotFound is the single outcome for missing, expired,
// and already-used tokens. Merging these is deliberate anti-enumeration
// behavior: a caller probing token IDs learns nothing about lifecycle state.
func errActivationTokenNotFound() *apperr.AppError {
	return apperr.NotFound(
		"The activation token was not found in the system or has expired.",
		"Sign up again.",
	)
}

// ActivationService manages the activation-token lifecycle and the account
// activation it unlocks.
type ActivationService struct {
	tokens    ActivationTokenRepository
	users     *Service
	mail      mailer.Mailer
	emailFrom string
	webOrigin string
	logger    *slog.Logger
}

// NewActivationService constructs an [ActivationService].
func NewActivationService(
	tokens ActivationTokenRepository,
	users *Service,
	mail mailer.Mailer,
	emailFrom string,
	webOrigin string,
	logger *slog.Logger,
) *ActivationService {
	return &ActivationService{
		tokens:    tokens,
		users:     users,
		mail:      mail,
		emailFrom: emailFrom,
		webOrigin: webOrigin,
		logger:    logger,
	}
}

// Create mints a new activation token for userID, expiring in
// [ActivationTokenTTL]. Prior unused tokens for the same user remain valid:
// multiple concurrently redeemable tokens are permitted.
func (service *ActivationService) Create(ctx context.Context, userID string) (*ActivationToken, error) {
	token := &ActivationToken{
		ID:        uuid.NewRandom(),
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(ActivationTokenTTL),
	}

	if err := service.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	return token, nil
}

// FindOneValidByID returns the token only while it is redeemable. The read
// filters by `used_at IS NULL AND expires_at > now()` at the same instant,
// so an expired or consumed token is indistinguishable from one that never
// existed.
func (service *ActivationService) FindOneValidByID(ctx context.Context, tokenID string) (*ActivationToken, error) {
	return service.tokens.FindValidByID(ctx, tokenID)
}

// MarkTokenAsUsed claims the token: one atomic conditional write at the
// storage layer. If the row was already claimed (possibly by a concurrent
// request that won the race) the result is the canonical NotFound.
func (service *ActivationService) MarkTokenAsUsed(ctx context.Context, tokenID string) (*ActivationToken, error) {
	return service.tokens.Claim(ctx, tokenID)
}

// ActivateUserByUserID replaces the target user's feature set wholesale
// with the activated grants (create:session, read:session).
//
// The target must still hold read:activation_token. Because activation
// removes that capability, a second activation attempt is rejected with
// Forbidden — activation revokes its own trigger.
func (service *ActivationService) ActivateUserByUserID(ctx context.Context, userID string) (*User, error) {
	target, err := service.users.FindOneByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	allowed, err := Can(target, FeatureReadActivationToken, nil)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.ForbiddenFeature(
			string(FeatureReadActivationToken),
			"You can no longer use activation tokens.",
			"Contact support.",
		)
	}

	return service.users.SetFeatures(ctx, userID, activatedFeatures)
}

// Claim redeems an activation token end to end: validity check, atomic
// single-use claim, then activation of the owning account. It returns the
// consumed token with UsedAt populated.
func (service *ActivationService) Claim(ctx context.Context, tokenID string) (*ActivationToken, error) {
	if _, err := service.FindOneValidByID(ctx, tokenID); err != nil {
		return nil, err
	}

	usedToken, err := service.MarkTokenAsUsed(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if _, err := service.ActivateUserByUserID(ctx, usedToken.UserID); err != nil {
		return nil, err
	}

	return usedToken, nil
}

// CreateAndNotify mints a token for user and emails the activation link.
// Email delivery is fire-and-forget: failures are logged, never retried,
// and never fail the caller.
func (service *ActivationService) CreateAndNotify(ctx context.Context, user *User) (*ActivationToken, error) {
	token, err := service.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := service.SendEmailToUser(ctx, user, token); err != nil {
		service.logger.ErrorContext(ctx, "activation_email_delivery_failed",
			slog.String("user_id", user.ID),
			slog.String("token_id", token.ID),
			slog.Any("error", err),
		)
	}

	return token, nil
}

// SendEmailToUser delivers the activation link through the Notification
// Port.
func (service *ActivationService) SendEmailToUser(ctx context.Context, user *User, token *ActivationToken) error {
	body := fmt.Sprintf(`Hello, %s!

To activate your account, follow the link below:

%s/signup/activate/%s

Best regards,
NerdHQ Team
`, user.Username, service.webOrigin, token.ID)

	return service.mail.Send(ctx, mailer.Message{
		From:    service.emailFrom,
		To:      user.Email,
		Subject: "Activate your account",
		Body:    body,
	})
}
