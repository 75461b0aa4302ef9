package core

import "strings"

// Role is the single role carried by every user account.
type Role string

const (
	RoleUser          Role = "USER"
	RoleModerator     Role = "MODERATOR"
	RoleAdministrator Role = "ADMINISTRATOR"
)

// ParseRole normalizes and validates a role name.
func ParseRole(v string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(v))); r {
	case RoleUser, RoleModerator, RoleAdministrator:
		return r, true
	default:
		return "", false
	}
}

// HasElevatedPrivileges is the one place the moderation privilege rule lives:
// moderators and administrators both qualify.
func HasElevatedPrivileges(r Role) bool {
	return r == RoleModerator || r == RoleAdministrator
}

// Principal is the authenticated identity bound to a session. A nil
// *Principal means the request is anonymous.
type Principal struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Action classifies what a request is trying to do, for authorization.
type Action int

const (
	// ActionReadPublicProfile covers profile, review and vote reads.
	ActionReadPublicProfile Action = iota
	// ActionReadModeration covers reports and backlog reads of other users.
	ActionReadModeration
	// ActionUpdateOwnCredentials covers email and password changes.
	ActionUpdateOwnCredentials
	// ActionUpdateRole covers role assignment.
	ActionUpdateRole
	// ActionManageUsers covers administrative account creation and listing.
	ActionManageUsers
	// ActionRecoverAccount covers requesting and completing password recovery.
	ActionRecoverAccount
)

// Policy decides whether a principal may perform an action. Evaluation is a
// pure lookup except for credential updates, which additionally re-verify the
// current password through the CredentialManager.
type Policy struct {
	creds *CredentialManager
}

func NewPolicy(creds *CredentialManager) *Policy {
	return &Policy{creds: creds}
}

// Authorize returns nil when principal may perform action against the account
// owned by owner. Every denial is the same generic unauthorized outcome so
// callers cannot learn why access was refused.
func (p *Policy) Authorize(principal *Principal, action Action, owner string) error {
	switch action {
	case ActionReadPublicProfile:
		return nil
	case ActionReadModeration:
		if principal != nil && HasElevatedPrivileges(principal.Role) {
			return nil
		}
	case ActionUpdateOwnCredentials:
		if principal != nil && principal.Username == owner {
			return nil
		}
	case ActionUpdateRole, ActionManageUsers:
		if principal != nil && principal.Role == RoleAdministrator {
			return nil
		}
	case ActionRecoverAccount:
		// Recovery is reserved for anonymous requests; an authenticated
		// session must change its password through the normal flow.
		if principal == nil {
			return nil
		}
	}
	return NewError(KindUnauthorized, "error.unauthorized")
}

// AuthorizeCredentialUpdate authorizes a self-service credential change: the
// principal must own the account and re-present its current password.
func (p *Policy) AuthorizeCredentialUpdate(principal *Principal, owner, currentPassword, storedHash string) error {
	if err := p.Authorize(principal, ActionUpdateOwnCredentials, owner); err != nil {
		return err
	}
	if !p.creds.Verify(currentPassword, storedHash) {
		return NewError(KindUnauthorized, "error.invalidCredentials")
	}
	return nil
}
