package models

import "time"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	RoleID       *int64
	IsSuperuser  bool
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Snapshot is the denormalized copy of the acting user stored with every
// audit row. It never carries the password hash.
func (u *User) Snapshot() map[string]any {
	snap := map[string]any{
		"id_usuario":   u.ID,
		"username":     u.Username,
		"is_superuser": u.IsSuperuser,
		"is_active":    u.IsActive,
		"created_at":   u.CreatedAt.Format(time.RFC3339),
		"updated_at":   u.UpdatedAt.Format(time.RFC3339),
	}
	if u.RoleID != nil {
		snap["id_rol"] = *u.RoleID
	} else {
		snap["id_rol"] = nil
	}
	if u.LastLogin != nil {
		snap["last_login"] = u.LastLogin.Format(time.RFC3339)
	} else {
		snap["last_login"] = nil
	}
	return snap
}

type Role struct {
	ID          int64
	Name        string
	Description *string
	IsActive    bool
	Modules     []PermissionModule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PermissionModule struct {
	ID          int64
	RoleID      int64
	Module      Module
	Permissions []Permission
	IsActive    bool
}

// ModuleGrant is the {nombre, permisos} pair exposed in login and verify
// payloads.
type ModuleGrant struct {
	Name        Module       `json:"nombre"`
	Permissions []Permission `json:"permisos"`
}

// Grants lists the active permission-module entries of the role.
func (r *Role) Grants() []ModuleGrant {
	grants := make([]ModuleGrant, 0, len(r.Modules))
	for _, pm := range r.Modules {
		if !pm.IsActive {
			continue
		}
		perms := make([]Permission, len(pm.Permissions))
		copy(perms, pm.Permissions)
		grants = append(grants, ModuleGrant{Name: pm.Module, Permissions: perms})
	}
	return grants
}

type Session struct {
	ID           int64
	UserID       int64
	Token        string
	RefreshToken *string
	StartedAt    time.Time
	ExpiresAt    *time.Time
	IPAddress    *string
	UserAgent    *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsValid reports whether the session may still authenticate requests. An
// active row whose expiry already passed is invalid even before the sweep
// flips its flag.
func (s *Session) IsValid(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.ExpiresAt == nil {
		return true
	}
	return !now.After(*s.ExpiresAt)
}

// View is what a user may see of their own sessions; the token stays out.
func (s *Session) View() map[string]any {
	view := map[string]any{
		"id_sesion":        s.ID,
		"fecha_inicio":     s.StartedAt.Format(time.RFC3339),
		"fecha_expiracion": nil,
		"ip_address":       s.IPAddress,
		"user_agent":       s.UserAgent,
	}
	if s.ExpiresAt != nil {
		view["fecha_expiracion"] = s.ExpiresAt.Format(time.RFC3339)
	}
	return view
}

// SessionUpdate carries the fields a partial session update may touch.
type SessionUpdate struct {
	Token        *string
	RefreshToken *string
	ExpiresAt    *time.Time
	IsActive     *bool
}
