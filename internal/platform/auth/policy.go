package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrForbidden is returned by a Policy that denies an action.
var ErrForbidden = errors.New("forbidden")

// Action names an operation subject to authorization.
type Action string

const (
	ActionPatientCreate Action = "patient:create"
	ActionPatientView   Action = "patient:view"
	ActionPatientEdit   Action = "patient:edit"
	ActionPatientDelete Action = "patient:delete"
	ActionDoctorManage  Action = "doctor:manage"
	ActionAppointment   Action = "appointment:manage"
	ActionBilling       Action = "billing:manage"
	ActionReportView    Action = "report:view"
)

const (
	RoleAdmin        = "admin"
	RolePhysician    = "physician"
	RoleReceptionist = "receptionist"
	RoleBilling      = "billing"
)

// Policy decides whether the caller in ctx may perform action. A nil
// return means allowed; denials wrap ErrForbidden.
type Policy interface {
	Authorize(ctx context.Context, action Action) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, action Action) error

func (f PolicyFunc) Authorize(ctx context.Context, action Action) error {
	return f(ctx, action)
}

// AllowAll permits every action. Used by the CLI and in tests.
var AllowAll Policy = PolicyFunc(func(context.Context, Action) error { return nil })

// AllOf permits an action only when every policy does.
func AllOf(policies ...Policy) Policy {
	return PolicyFunc(func(ctx context.Context, action Action) error {
		for _, p := range policies {
			if err := p.Authorize(ctx, action); err != nil {
				return err
			}
		}
		return nil
	})
}

// DefaultRoleGrants maps actions to the roles allowed to perform them.
// admin is implicitly granted everything.
func DefaultRoleGrants() map[Action][]string {
	return map[Action][]string{
		ActionPatientCreate: {RolePhysician, RoleReceptionist},
		ActionPatientView:   {RolePhysician, RoleReceptionist},
		ActionPatientEdit:   {RolePhysician, RoleReceptionist},
		ActionDoctorManage:  {},
		ActionPatientDelete: {},
		ActionAppointment:   {RolePhysician, RoleReceptionist},
		ActionBilling:       {RoleBilling, RoleReceptionist},
		ActionReportView:    {RolePhysician, RoleBilling},
	}
}

// RolePolicy grants actions based on the roles on the request context.
type RolePolicy struct {
	grants map[Action][]string
}

func NewRolePolicy(grants map[Action][]string) *RolePolicy {
	return &RolePolicy{grants: grants}
}

func (p *RolePolicy) Authorize(ctx context.Context, action Action) error {
	roles := RolesFromContext(ctx)
	for _, has := range roles {
		if has == RoleAdmin {
			return nil
		}
		for _, allowed := range p.grants[action] {
			if has == allowed {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s not permitted", ErrForbidden, action)
}

// PassphrasePolicy gates a set of actions behind a shared passphrase whose
// bcrypt hash is configured at startup. Other actions pass through.
type PassphrasePolicy struct {
	hash  []byte
	gated map[Action]bool
}

// NewPassphrasePolicy validates hash and returns a policy gating actions.
func NewPassphrasePolicy(hash string, actions ...Action) (*PassphrasePolicy, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid passphrase hash: %w", err)
	}
	gated := make(map[Action]bool, len(actions))
	for _, a := range actions {
		gated[a] = true
	}
	return &PassphrasePolicy{hash: []byte(hash), gated: gated}, nil
}

func (p *PassphrasePolicy) Authorize(ctx context.Context, action Action) error {
	if !p.gated[action] {
		return nil
	}
	supplied := PassphraseFromContext(ctx)
	if supplied == "" {
		return fmt.Errorf("%w: passphrase required", ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(supplied)); err != nil {
		return fmt.Errorf("%w: incorrect passphrase", ErrForbidden)
	}
	return nil
}
