package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// AccountConflictResolver checks an identifier against existing accounts
// before any code is sent. Results are never cached.
type AccountConflictResolver struct {
	profiles domain.ProfileService
	log      *logrus.Entry
}

// NewAccountConflictResolver creates a resolver backed by the Profile Service
func NewAccountConflictResolver(profiles domain.ProfileService, log *logrus.Entry) *AccountConflictResolver {
	return &AccountConflictResolver{profiles: profiles, log: log}
}

// Resolve looks the identifier up and decides whether a send may proceed.
// A non-nil notice is informational and never blocks the flow.
func (r *AccountConflictResolver) Resolve(
	ctx context.Context,
	identifier string,
	channel domain.Channel,
	intended domain.Role,
	mode domain.AuthMode,
) (*domain.AccountConflict, *domain.Notice, error) {
	conflict, err := r.profiles.CheckExists(ctx, identifier, channel, intended)
	if err != nil {
		return nil, nil, mapProviderError(err)
	}
	if conflict == nil {
		conflict = &domain.AccountConflict{}
	}

	notice, err := DecideConflict(*conflict, intended, mode)
	r.log.WithFields(logrus.Fields{
		"channel":       channel,
		"mode":          mode,
		"exists":        conflict.Exists,
		"existing_role": conflict.ExistingRole,
	}).Debug("account conflict resolved")
	return conflict, notice, err
}

// DecideConflict applies the login/signup rules to a lookup result
func DecideConflict(c domain.AccountConflict, intended domain.Role, mode domain.AuthMode) (*domain.Notice, error) {
	switch mode {
	case domain.ModeLogin:
		if !c.Exists {
			return nil, domain.ErrNoAccount
		}
		if c.ExistingRole != intended {
			return nil, fmt.Errorf("%w: registered as %s", domain.ErrRoleMismatch, c.ExistingRole)
		}
		return nil, nil

	case domain.ModeSignup:
		if !c.Exists {
			return nil, nil
		}
		if c.ExistingRole == intended {
			return nil, domain.ErrAccountAlreadyExists
		}
		return &domain.Notice{
			Kind: domain.NoticeInfo,
			Code: domain.NoticeRoleAddition,
			Message: fmt.Sprintf("This identifier already has a %s account; a %s profile will be added to it.",
				c.ExistingRole, intended),
		}, nil

	default:
		return nil, domain.NewValidationError("mode")
	}
}
