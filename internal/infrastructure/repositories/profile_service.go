package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/you/mimora/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProfileServiceImpl implements domain.ProfileService on gorm. It trusts
// provider tokens signed by the configured TokenService and hands back
// session tokens from the same service.
type ProfileServiceImpl struct {
	db     *gorm.DB
	tokens domain.TokenService
	now    func() time.Time
}

// NewProfileService creates a new profile service
func NewProfileService(db *gorm.DB, tokens domain.TokenService) *ProfileServiceImpl {
	return &ProfileServiceImpl{db: db, tokens: tokens, now: time.Now}
}

// Authenticate implements domain.ProfileService
func (s *ProfileServiceImpl) Authenticate(ctx context.Context, providerToken string, role domain.Role, mode domain.AuthMode) (*domain.AuthResult, error) {
	if !role.Valid() {
		return nil, domain.NewValidationError("role")
	}
	pt, err := s.tokens.ValidateProviderToken(providerToken)
	if err != nil {
		return nil, err
	}

	var acc *DBAccount
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts, err := s.findByProviderToken(tx, pt)
		if err != nil {
			return err
		}
		existing := pickRole(accounts, role)

		switch mode {
		case domain.ModeLogin:
			if len(accounts) == 0 {
				return domain.ErrNoAccount
			}
			if existing == nil {
				return domain.ErrRoleMismatch
			}
			acc = existing
		case domain.ModeSignup:
			if existing != nil {
				return domain.ErrAccountAlreadyExists
			}
			acc, err = s.create(tx, pt, role)
			return err
		case domain.ModeProvider:
			if existing != nil {
				acc = existing
				return nil
			}
			acc, err = s.create(tx, pt, role)
			return err
		default:
			return domain.NewValidationError("mode")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.IssueSessionToken(acc.ID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}
	account, err := s.toDomain(ctx, s.db, acc)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{Account: account, Token: token}, nil
}

// CheckExists implements domain.ProfileService. When the identifier owns
// accounts of several roles, the intended role is reported if present.
func (s *ProfileServiceImpl) CheckExists(ctx context.Context, identifier string, channel domain.Channel, role domain.Role) (*domain.AccountConflict, error) {
	column, err := identifierColumn(channel)
	if err != nil {
		return nil, err
	}

	var accounts []DBAccount
	if err := s.db.WithContext(ctx).Where(column+" = ?", identifier).Order("created_at").Find(&accounts).Error; err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return &domain.AccountConflict{Exists: false}, nil
	}
	if acc := pickRole(accounts, role); acc != nil {
		return &domain.AccountConflict{Exists: true, ExistingRole: role}, nil
	}
	return &domain.AccountConflict{Exists: true, ExistingRole: domain.Role(accounts[0].Role)}, nil
}

// CompleteArtistStep implements domain.ProfileService. The step is saved
// and marked complete; every earlier step must be complete already.
// markComplete flags the whole profile once all steps are done.
func (s *ProfileServiceImpl) CompleteArtistStep(ctx context.Context, token string, step domain.StepID, fields domain.Fields, markComplete bool) (domain.Account, error) {
	idx := domain.StepIndex(step)
	if idx < 0 {
		return nil, domain.ErrUnknownStep
	}
	acc, err := s.artistFromToken(ctx, token)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []DBArtistStep
		if err := tx.Where("account_id = ?", acc.ID).Find(&rows).Error; err != nil {
			return err
		}
		done := completedSet(rows)
		for _, prev := range domain.Steps[:idx] {
			if !done[prev] {
				return fmt.Errorf("%w: %s must be completed first", domain.ErrStepLocked, prev)
			}
		}

		now := s.now()
		row := DBArtistStep{AccountID: acc.ID, Step: string(step), Fields: datatypes.JSONMap(fields.Clone())}
		for _, r := range rows {
			if r.Step == string(step) {
				row.CompletedAt = r.CompletedAt
			}
		}
		if row.CompletedAt == nil {
			row.CompletedAt = &now
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		done[step] = true
		updates := map[string]any{"updated_at": now}
		if markComplete && len(done) == len(domain.Steps) {
			updates["profile_completed"] = true
		}
		if step == domain.StepPersonalDetails {
			if v, ok := fields["fullName"].(string); ok && v != "" {
				updates["name"] = v
			}
		}
		return tx.Model(acc).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).First(acc, "id = ?", acc.ID).Error; err != nil {
		return nil, err
	}
	return s.toDomain(ctx, s.db, acc)
}

// GetCurrentArtist implements domain.ProfileService
func (s *ProfileServiceImpl) GetCurrentArtist(ctx context.Context, token string) (*domain.ArtistAccount, error) {
	acc, err := s.artistFromToken(ctx, token)
	if err != nil {
		return nil, err
	}
	account, err := s.toDomain(ctx, s.db, acc)
	if err != nil {
		return nil, err
	}
	return account.(*domain.ArtistAccount), nil
}

func (s *ProfileServiceImpl) artistFromToken(ctx context.Context, token string) (*DBAccount, error) {
	claims, err := s.tokens.ValidateSessionToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != domain.RoleArtist {
		return nil, domain.ErrNotArtist
	}

	var acc DBAccount
	err = s.db.WithContext(ctx).Where("id = ? AND role = ?", claims.AccountID, string(domain.RoleArtist)).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNoAccount
		}
		return nil, err
	}
	return &acc, nil
}

func (s *ProfileServiceImpl) findByProviderToken(tx *gorm.DB, pt *domain.ProviderToken) ([]DBAccount, error) {
	var accounts []DBAccount
	q := tx.Order("created_at")
	switch domain.Channel(pt.Channel) {
	case domain.ChannelPhone:
		q = q.Where("phone = ?", pt.Identifier)
	case domain.ChannelEmail:
		q = q.Where("email = ?", pt.Identifier)
	default:
		// interactive provider logins are keyed by subject, or by the
		// email the provider vouched for
		if pt.Identifier != "" {
			q = q.Where("subject = ? OR email = ?", pt.Subject, pt.Identifier)
		} else {
			q = q.Where("subject = ?", pt.Subject)
		}
	}
	if err := q.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *ProfileServiceImpl) create(tx *gorm.DB, pt *domain.ProviderToken, role domain.Role) (*DBAccount, error) {
	acc := &DBAccount{
		ID:      uuid.NewString(),
		Role:    string(role),
		Subject: pt.Subject,
	}
	switch domain.Channel(pt.Channel) {
	case domain.ChannelPhone:
		acc.Phone = pt.Identifier
	default:
		acc.Email = pt.Identifier
	}
	if err := tx.Create(acc).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

func (s *ProfileServiceImpl) toDomain(ctx context.Context, db *gorm.DB, acc *DBAccount) (domain.Account, error) {
	if domain.Role(acc.Role) == domain.RoleCustomer {
		return &domain.CustomerAccount{
			ID:        acc.ID,
			Name:      acc.Name,
			Email:     acc.Email,
			Phone:     acc.Phone,
			CreatedAt: acc.CreatedAt,
		}, nil
	}

	var rows []DBArtistStep
	if err := db.WithContext(ctx).Where("account_id = ?", acc.ID).Find(&rows).Error; err != nil {
		return nil, err
	}
	onboarding := &domain.ArtistOnboarding{
		CompletedSteps: []domain.StepID{},
		Fields:         make(map[domain.StepID]domain.Fields, len(rows)),
	}
	done := completedSet(rows)
	for _, id := range domain.Steps {
		if done[id] {
			onboarding.CompletedSteps = append(onboarding.CompletedSteps, id)
		}
	}
	for _, r := range rows {
		onboarding.Fields[domain.StepID(r.Step)] = domain.Fields(r.Fields)
	}

	return &domain.ArtistAccount{
		ID:               acc.ID,
		Name:             acc.Name,
		Email:            acc.Email,
		Phone:            acc.Phone,
		ProfileCompleted: acc.ProfileCompleted,
		Onboarding:       onboarding,
		CreatedAt:        acc.CreatedAt,
	}, nil
}

func completedSet(rows []DBArtistStep) map[domain.StepID]bool {
	done := make(map[domain.StepID]bool, len(rows))
	for _, r := range rows {
		if r.CompletedAt != nil {
			done[domain.StepID(r.Step)] = true
		}
	}
	return done
}

func pickRole(accounts []DBAccount, role domain.Role) *DBAccount {
	for i := range accounts {
		if domain.Role(accounts[i].Role) == role {
			return &accounts[i]
		}
	}
	return nil
}

func identifierColumn(channel domain.Channel) (string, error) {
	switch channel {
	case domain.ChannelPhone:
		return "phone", nil
	case domain.ChannelEmail:
		return "email", nil
	default:
		return "", domain.NewValidationError("channel")
	}
}

var _ domain.ProfileService = (*ProfileServiceImpl)(nil)
