package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/metrics"
	"incentivos/api/internal/models"
	"incentivos/api/internal/repository"
	"incentivos/api/internal/security"
)

var (
	errBadCredentials = apperr.Validation("Credenciales inválidas")
	errUserInactive   = apperr.Validation("Usuario inactivo")
	errRoleInvalid    = apperr.NotFound("Rol inválido o inactivo")
)

type AuthService struct {
	users    UserStore
	roles    RoleStore
	sessions SessionStore
	tx       Transactor
	tokens   *security.TokenManager
	hasher   *security.PasswordHasher
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(
	users UserStore,
	roles RoleStore,
	sessions SessionStore,
	tx Transactor,
	tokens *security.TokenManager,
	hasher *security.PasswordHasher,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		roles:    roles,
		sessions: sessions,
		tx:       tx,
		tokens:   tokens,
		hasher:   hasher,
		log:      log,
		now:      time.Now,
	}
}

type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

type RefreshResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *models.Principal `json:"user"`
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (models.LoginResult, error) {
	result, err := s.login(ctx, input)
	if err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind != apperr.KindRepository {
			metrics.Logins.WithLabelValues("rejected").Inc()
			return models.LoginResult{}, err
		}
		metrics.Logins.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Str("username", input.Username).Msg("login failed")
		return models.LoginResult{}, repoErr("Error al autenticar usuario", err)
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	return result, nil
}

func (s *AuthService) login(ctx context.Context, input LoginInput) (models.LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.LoginResult{}, errBadCredentials
		}
		return models.LoginResult{}, err
	}
	if !user.IsActive {
		return models.LoginResult{}, errUserInactive
	}
	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		return models.LoginResult{}, errBadCredentials
	}

	role, err := s.activeRole(ctx, user)
	if err != nil {
		return models.LoginResult{}, err
	}
	if role == nil {
		return models.LoginResult{}, errRoleInvalid
	}

	lines, err := s.users.ListLineIDs(ctx, user.ID)
	if err != nil {
		return models.LoginResult{}, err
	}

	var token security.Token
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		token, _, err = s.issueSession(ctx, user, lines, input.IPAddress, input.UserAgent)
		return err
	})
	if err != nil {
		return models.LoginResult{}, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("update last login")
	}

	return models.LoginResult{
		UserID:           user.ID,
		Username:         user.Username,
		IsSuperuser:      user.IsSuperuser,
		Token:            token.Value,
		ExpiresAt:        token.ExpiresAt,
		Role:             roleView(role),
		LineasPermitidas: lines,
	}, nil
}

// issueSession stores a session and returns the token bound to it. The row id
// only exists after the insert, so the row first holds a provisional token
// that is swapped for one carrying session_id and lineas.
func (s *AuthService) issueSession(ctx context.Context, user models.User, lines []int64, ip, userAgent string) (security.Token, models.Session, error) {
	provisional, err := s.tokens.Generate(security.TokenPayload{UserID: user.ID, Username: user.Username})
	if err != nil {
		return security.Token{}, models.Session{}, err
	}

	session, err := s.sessions.Create(ctx, models.Session{
		UserID:    user.ID,
		Token:     provisional.Value,
		StartedAt: s.now(),
		ExpiresAt: &provisional.ExpiresAt,
		IPAddress: optional(ip),
		UserAgent: optional(userAgent),
		IsActive:  true,
	})
	if err != nil {
		return security.Token{}, models.Session{}, err
	}

	sessionID := session.ID
	final, err := s.tokens.Generate(security.TokenPayload{
		UserID:    user.ID,
		Username:  user.Username,
		SessionID: &sessionID,
		Lines:     lines,
	})
	if err != nil {
		return security.Token{}, models.Session{}, err
	}

	session, err = s.sessions.Update(ctx, session.ID, models.SessionUpdate{
		Token:     &final.Value,
		ExpiresAt: &final.ExpiresAt,
	})
	if err != nil {
		return security.Token{}, models.Session{}, err
	}
	return final, session, nil
}

// VerifyToken resolves a token to its principal. Any authentication failure
// yields a nil principal; the error is reserved for infrastructure faults.
// An expired session found on the way is deactivated.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*models.Principal, error) {
	if token == "" {
		return nil, nil
	}

	claims, err := s.tokens.Decode(token)
	if err != nil {
		if errors.Is(err, apperr.ErrTokenExpired) {
			s.expireSession(ctx, token)
		}
		return nil, nil
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, repoErr("Error al verificar token", err)
	}
	if session.UserID != claims.UserID {
		return nil, nil
	}
	if !session.IsValid(s.now()) {
		if session.IsActive {
			if err := s.sessions.SoftDelete(ctx, session.ID); err != nil {
				s.log.Warn().Err(err).Int64("session_id", session.ID).Msg("deactivate expired session")
			}
		}
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, repoErr("Error al verificar token", err)
	}
	if !user.IsActive {
		return nil, nil
	}

	role, err := s.activeRole(ctx, user)
	if err != nil {
		return nil, repoErr("Error al verificar token", err)
	}
	if role == nil {
		return nil, nil
	}

	lines, err := s.users.ListLineIDs(ctx, user.ID)
	if err != nil {
		return nil, repoErr("Error al verificar token", err)
	}

	sessionID := session.ID
	return &models.Principal{
		UserID:      user.ID,
		Username:    user.Username,
		IsSuperuser: user.IsSuperuser,
		SessionID:   &sessionID,
		Role:        roleView(role),
		Lines:       lines,
	}, nil
}

func (s *AuthService) expireSession(ctx context.Context, token string) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return
	}
	if err := s.sessions.SoftDelete(ctx, session.ID); err != nil {
		s.log.Warn().Err(err).Int64("session_id", session.ID).Msg("deactivate expired session")
	}
}

// RefreshToken rotates a valid session: the old session is closed and a new
// one is opened in the same transaction.
func (s *AuthService) RefreshToken(ctx context.Context, token, ip, userAgent string) (RefreshResult, error) {
	principal, err := s.VerifyToken(ctx, token)
	if err != nil {
		return RefreshResult{}, err
	}
	if principal == nil {
		return RefreshResult{}, apperr.ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, principal.UserID)
	if err != nil {
		return RefreshResult{}, repoErr("Error al refrescar token", err)
	}

	var (
		next    security.Token
		session models.Session
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.sessions.InvalidateByToken(ctx, token); err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return apperr.ErrSessionInvalid
			}
			return err
		}
		var err error
		next, session, err = s.issueSession(ctx, user, principal.Lines, ip, userAgent)
		return err
	})
	if err != nil {
		return RefreshResult{}, repoErr("Error al refrescar token", err)
	}

	sessionID := session.ID
	principal.SessionID = &sessionID
	return RefreshResult{Token: next.Value, ExpiresAt: next.ExpiresAt, User: principal}, nil
}

// Logout deactivates the session holding token. It reports false when no
// active session matched.
func (s *AuthService) Logout(ctx context.Context, token string) (bool, error) {
	if err := s.sessions.InvalidateByToken(ctx, token); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return false, nil
		}
		return false, repoErr("Error al cerrar sesión", err)
	}
	return true, nil
}

func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.sessions.InvalidateAllByUser(ctx, userID)
	if err != nil {
		return 0, repoErr("Error al cerrar sesiones", err)
	}
	s.log.Info().Int64("user_id", userID).Int64("sessions", n).Msg("all sessions closed")
	return n, nil
}

// ListSessions returns the live sessions of a user, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID int64) ([]models.Session, error) {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, repoErr("Error al consultar sesiones", err)
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.CleanupExpired(ctx)
	if err != nil {
		return 0, repoErr("Error al limpiar sesiones expiradas", err)
	}
	metrics.SessionsSwept.Add(float64(n))
	return n, nil
}

// Authenticate is the strict variant used by the HTTP layer: every failure
// comes back as a typed 401/403 error.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Principal, error) {
	if token == "" {
		return nil, apperr.ErrTokenMissing
	}

	claims, err := s.tokens.Decode(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.ErrTokenInvalid
		}
		return nil, repoErr("Error al autenticar usuario", err)
	}
	if !user.IsActive {
		return nil, apperr.ErrUserInactive
	}

	if claims.SessionID != nil {
		session, err := s.sessions.GetByID(ctx, *claims.SessionID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return nil, apperr.ErrSessionInvalid
			}
			return nil, repoErr("Error al autenticar usuario", err)
		}
		if session.UserID != user.ID || session.Token != token || !session.IsValid(s.now()) {
			return nil, apperr.ErrSessionInvalid
		}
	}

	role, err := s.activeRole(ctx, user)
	if err != nil {
		return nil, repoErr("Error al autenticar usuario", err)
	}

	lines, err := s.users.ListLineIDs(ctx, user.ID)
	if err != nil {
		return nil, repoErr("Error al autenticar usuario", err)
	}

	return &models.Principal{
		UserID:      user.ID,
		Username:    user.Username,
		IsSuperuser: user.IsSuperuser,
		SessionID:   claims.SessionID,
		Role:        roleView(role),
		Lines:       lines,
	}, nil
}

// activeRole returns nil when the user has no role or the role is missing or
// inactive.
func (s *AuthService) activeRole(ctx context.Context, user models.User) (*models.Role, error) {
	if user.RoleID == nil {
		return nil, nil
	}
	role, err := s.roles.GetWithModules(ctx, *user.RoleID)
	if err != nil {
		if errors.Is(err, repository.ErrRoleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !role.IsActive {
		return nil, nil
	}
	return &role, nil
}

func roleView(role *models.Role) models.RoleView {
	if role == nil {
		return models.RoleView{Modules: []models.ModuleGrant{}}
	}
	return models.RoleView{ID: role.ID, Name: role.Name, Modules: role.Grants()}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
