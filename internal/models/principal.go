package models

import "time"

type RoleView struct {
	ID      int64         `json:"id,omitempty"`
	Name    string        `json:"nombre"`
	Modules []ModuleGrant `json:"modulos"`
}

// Principal is the verified caller: who they are, what their role grants and
// which production lines they may touch.
type Principal struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	IsSuperuser bool     `json:"is_superuser"`
	SessionID   *int64   `json:"-"`
	Role        RoleView `json:"rol"`
	Lines       []int64  `json:"lineas"`
}

// Can reports whether the role grants every one of perms on module. With
// no perms it only checks that the module is granted at all.
func (p *Principal) Can(module Module, perms ...Permission) bool {
	for _, grant := range p.Role.Modules {
		if grant.Name != module {
			continue
		}
		for _, want := range perms {
			if !hasPermission(grant.Permissions, want) {
				return false
			}
		}
		return true
	}
	return false
}

func hasPermission(granted []Permission, want Permission) bool {
	for _, p := range granted {
		if p == want {
			return true
		}
	}
	return false
}

// LoginResult is returned by login and refresh.
type LoginResult struct {
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	IsSuperuser      bool      `json:"is_superuser"`
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expires_at"`
	Role             RoleView  `json:"rol"`
	LineasPermitidas []int64   `json:"lineas_permitidas"`
}
