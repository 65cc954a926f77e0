package identity

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// ChannelProvider is the provider name carried in tokens from interactive login
const ChannelProvider = "oidc"

// cancelledCredentials are sent by the web client when the user dismisses
// the provider popup
var cancelledCredentials = map[string]bool{
	"":             true,
	"popup_closed": true,
	"cancelled":    true,
}

// LoginVerifier checks a credential from an interactive provider login
type LoginVerifier interface {
	VerifyCredential(ctx context.Context, credential string) (*Identity, error)
}

// Identity is what an interactive login vouches for
type Identity struct {
	Subject string
	Email   string
}

// Provider implements domain.IdentityProvider with our own OTP challenges
// and an optional OIDC login. Provider tokens are signed by tokens.
type Provider struct {
	otp    domain.OTPService
	tokens domain.TokenService
	login  LoginVerifier
	log    *logrus.Entry
}

// NewProvider creates an identity provider. login may be nil, in which case
// interactive login is reported as a network failure.
func NewProvider(otp domain.OTPService, tokens domain.TokenService, login LoginVerifier, log *logrus.Entry) *Provider {
	return &Provider{otp: otp, tokens: tokens, login: login, log: log.WithField("component", "identity")}
}

// SendPhoneChallenge implements domain.IdentityProvider
func (p *Provider) SendPhoneChallenge(ctx context.Context, number string) (domain.ChallengeHandle, error) {
	req, err := p.otp.Generate(ctx, domain.ChannelPhone, number, "")
	if err != nil {
		return "", err
	}
	return req.Handle, nil
}

// ConfirmPhoneChallenge implements domain.IdentityProvider
func (p *Provider) ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderToken, error) {
	return p.confirm(ctx, domain.ChannelPhone, handle, code)
}

// SendEmailChallenge implements domain.IdentityProvider
func (p *Provider) SendEmailChallenge(ctx context.Context, email, label string) (domain.ChallengeHandle, error) {
	req, err := p.otp.Generate(ctx, domain.ChannelEmail, email, label)
	if err != nil {
		return "", err
	}
	return req.Handle, nil
}

// ConfirmEmailChallenge implements domain.IdentityProvider
func (p *Provider) ConfirmEmailChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderToken, error) {
	return p.confirm(ctx, domain.ChannelEmail, handle, code)
}

func (p *Provider) confirm(ctx context.Context, channel domain.Channel, handle domain.ChallengeHandle, code string) (*domain.ProviderToken, error) {
	req, err := p.otp.Verify(ctx, handle, code)
	if err != nil {
		return nil, err
	}
	if req.Channel != channel {
		// a handle from the other channel never verifies here
		return nil, domain.ErrCodeExpired
	}

	subject := fmt.Sprintf("%s:%s", channel, req.Target)
	tok, err := p.tokens.IssueProviderToken(subject, channel, req.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to issue provider token: %w", err)
	}
	return tok, nil
}

// InteractiveLogin implements domain.IdentityProvider
func (p *Provider) InteractiveLogin(ctx context.Context, credential string) (*domain.ProviderToken, error) {
	if cancelledCredentials[credential] {
		return nil, domain.ErrProviderCancelled
	}
	if p.login == nil {
		return nil, fmt.Errorf("%w: interactive login is not configured", domain.ErrNetworkFailure)
	}

	id, err := p.login.VerifyCredential(ctx, credential)
	if err != nil {
		p.log.WithError(err).Warn("provider credential rejected")
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	tok, err := p.tokens.IssueProviderToken(id.Subject, ChannelProvider, id.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue provider token: %w", err)
	}
	return tok, nil
}

var _ domain.IdentityProvider = (*Provider)(nil)
