package services

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/you/mimora/domain"
)

// ViewAction is the casbin action used for rendering a view
const ViewAction = "view"

// viewPrefix is the only resource namespace view policies may grant
const viewPrefix = "/views/"

// DefaultViewPolicies maps roles to the views they may render
var DefaultViewPolicies = [][3]string{
	{string(domain.RoleCustomer), "/views/customer/*", ViewAction},
	{string(domain.RoleCustomer), "/views/common/*", ViewAction},
	{string(domain.RoleArtist), "/views/artist/*", ViewAction},
	{string(domain.RoleArtist), "/views/common/*", ViewAction},
}

// casbinViews adapts *casbin.Enforcer to domain.CasbinEnforcer
type casbinViews struct {
	e *casbin.Enforcer
}

func (c casbinViews) AddPolicy(params ...interface{}) (bool, error) { return c.e.AddPolicy(params...) }
func (c casbinViews) RemovePolicy(params ...interface{}) (bool, error) {
	return c.e.RemovePolicy(params...)
}
func (c casbinViews) Enforce(rvals ...interface{}) (bool, error) { return c.e.Enforce(rvals...) }
func (c casbinViews) GetPolicy() ([][]string, error)             { return c.e.GetPolicy() }
func (c casbinViews) SavePolicy() error                          { return c.e.SavePolicy() }

// ViewPolicyService decides which role may render which view. Grants are
// (role, view pattern, action) triples persisted through the enforcer's
// adapter.
type ViewPolicyService struct {
	enforcer domain.CasbinEnforcer
}

// NewPolicyService creates the view policy service over a loaded enforcer
func NewPolicyService(enforcer *casbin.Enforcer) domain.PolicyService {
	return NewPolicyServiceWithEnforcer(casbinViews{e: enforcer})
}

// NewPolicyServiceWithEnforcer creates the service over any enforcer
func NewPolicyServiceWithEnforcer(enforcer domain.CasbinEnforcer) *ViewPolicyService {
	return &ViewPolicyService{enforcer: enforcer}
}

// AddPolicy grants role the action on a view pattern. Patterns outside
// /views/ are rejected.
func (s *ViewPolicyService) AddPolicy(role, resource, action string) error {
	if err := checkGrant(role, resource, action); err != nil {
		return err
	}
	if _, err := s.enforcer.AddPolicy(role, resource, action); err != nil {
		return err
	}
	return s.enforcer.SavePolicy()
}

// RemovePolicy revokes a grant; removing a missing grant is not an error
func (s *ViewPolicyService) RemovePolicy(role, resource, action string) error {
	if _, err := s.enforcer.RemovePolicy(role, resource, action); err != nil {
		return err
	}
	return s.enforcer.SavePolicy()
}

// CheckPermission implements domain.PolicyService
func (s *ViewPolicyService) CheckPermission(role, resource, action string) (bool, error) {
	return s.enforcer.Enforce(role, resource, action)
}

// GetPolicies lists every grant; an unreadable store lists none
func (s *ViewPolicyService) GetPolicies() [][]string {
	policies, _ := s.enforcer.GetPolicy()
	return policies
}

func checkGrant(role, resource, action string) error {
	switch {
	case strings.TrimSpace(role) == "":
		return domain.NewValidationError("sub")
	case !strings.HasPrefix(resource, viewPrefix):
		return &domain.ValidationError{Field: "obj", Reason: "must be a view under " + viewPrefix}
	case strings.TrimSpace(action) == "":
		return domain.NewValidationError("act")
	}
	return nil
}

// SeedViewPolicies adds any default view policy that is missing
func SeedViewPolicies(policies domain.PolicyService) error {
	existing := make(map[[3]string]bool)
	for _, p := range policies.GetPolicies() {
		if len(p) >= 3 {
			existing[[3]string{p[0], p[1], p[2]}] = true
		}
	}
	for _, p := range DefaultViewPolicies {
		if existing[p] {
			continue
		}
		if err := policies.AddPolicy(p[0], p[1], p[2]); err != nil {
			return fmt.Errorf("seed view policy %v: %w", p, err)
		}
	}
	return nil
}

// CanView reports whether role may render the view at path
func CanView(policies domain.PolicyService, role domain.Role, path string) (bool, error) {
	if !role.Valid() {
		return false, nil
	}
	return policies.CheckPermission(string(role), path, ViewAction)
}

var _ domain.PolicyService = (*ViewPolicyService)(nil)
