package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Account is either a *CustomerAccount or an *ArtistAccount
type Account interface {
	AccountID() string
	AccountRole() Role
	ProfileComplete() bool
	isAccount()
}

// CustomerAccount is a customer's account record
type CustomerAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *CustomerAccount) AccountID() string     { return a.ID }
func (a *CustomerAccount) AccountRole() Role     { return RoleCustomer }
func (a *CustomerAccount) ProfileComplete() bool { return true }
func (a *CustomerAccount) isAccount()            {}

// ArtistAccount is an artist's account record. Onboarding carries the
// durable copy of the setup progress held by the Profile Service.
type ArtistAccount struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	ProfileCompleted bool              `json:"profile_completed"`
	Onboarding       *ArtistOnboarding `json:"onboarding,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

func (a *ArtistAccount) AccountID() string     { return a.ID }
func (a *ArtistAccount) AccountRole() Role     { return RoleArtist }
func (a *ArtistAccount) ProfileComplete() bool { return a.ProfileCompleted }
func (a *ArtistAccount) isAccount()            {}

// ArtistOnboarding is the remote record of step completion and saved fields
type ArtistOnboarding struct {
	CompletedSteps []StepID          `json:"completed_steps"`
	Fields         map[StepID]Fields `json:"fields,omitempty"`
}

type accountEnvelope struct {
	Kind    Role            `json:"kind"`
	Account json.RawMessage `json:"account"`
}

// EncodeAccount serializes an account with its variant tag
func EncodeAccount(a Account) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("encode account: nil account")
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return json.Marshal(accountEnvelope{Kind: a.AccountRole(), Account: body})
}

// DecodeAccount restores a tagged account and validates its shape.
// Callers treat any error as "no account".
func DecodeAccount(data []byte) (Account, error) {
	var env accountEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	switch env.Kind {
	case RoleCustomer:
		var c CustomerAccount
		if err := json.Unmarshal(env.Account, &c); err != nil {
			return nil, fmt.Errorf("decode customer account: %w", err)
		}
		if c.ID == "" {
			return nil, fmt.Errorf("decode customer account: missing id")
		}
		return &c, nil
	case RoleArtist:
		var a ArtistAccount
		if err := json.Unmarshal(env.Account, &a); err != nil {
			return nil, fmt.Errorf("decode artist account: %w", err)
		}
		if a.ID == "" {
			return nil, fmt.Errorf("decode artist account: missing id")
		}
		if a.Onboarding != nil {
			for _, id := range a.Onboarding.CompletedSteps {
				if StepIndex(id) < 0 {
					return nil, fmt.Errorf("decode artist account: unknown step %q", id)
				}
			}
		}
		return &a, nil
	default:
		return nil, fmt.Errorf("decode account: unknown kind %q", env.Kind)
	}
}
