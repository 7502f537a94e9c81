package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"incentivos/api/internal/middleware"
	"incentivos/api/internal/service"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Login exitoso", result)
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h HandlerSet) Logout(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	ok, err := h.auth.Logout(c.Request.Context(), req.Token)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if !ok {
		fail(c, http.StatusNotFound, "Token no encontrado")
		return
	}

	respond(c, http.StatusOK, "Sesión cerrada exitosamente", gin.H{"logged_out": true})
}

func (h HandlerSet) VerifyToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	p, err := h.auth.VerifyToken(c.Request.Context(), req.Token)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if p == nil {
		fail(c, http.StatusUnauthorized, "Token inválido o expirado")
		return
	}

	respond(c, http.StatusOK, "Token válido", p)
}

func (h HandlerSet) RefreshToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	result, err := h.auth.RefreshToken(c.Request.Context(), req.Token, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Token renovado exitosamente", result)
}

func (h HandlerSet) Me(c *gin.Context) {
	respond(c, http.StatusOK, "Información del usuario obtenida", principal(c))
}

func (h HandlerSet) LogoutAll(c *gin.Context) {
	n, err := h.auth.LogoutAll(c.Request.Context(), principal(c).UserID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Todas las sesiones han sido cerradas", gin.H{
		"all_sessions_closed": true,
		"sesiones":            n,
	})
}

// ListSessions lists the caller's live sessions and flags the one the request
// came in on.
func (h HandlerSet) ListSessions(c *gin.Context) {
	p := principal(c)
	sessions, err := h.auth.ListSessions(c.Request.Context(), p.UserID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	views := make([]map[string]any, len(sessions))
	for i := range sessions {
		views[i] = sessions[i].View()
		views[i]["actual"] = p.SessionID != nil && *p.SessionID == sessions[i].ID
	}
	respond(c, http.StatusOK, "Sesiones activas obtenidas", views)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h HandlerSet) ChangeOwnPassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.users.ChangeOwnPassword(c.Request.Context(), principal(c).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Contraseña cambiada exitosamente", gin.H{"password_changed": true})
}

func (h HandlerSet) CleanupSessions(c *gin.Context) {
	n, err := h.auth.CleanupExpiredSessions(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Sesiones expiradas limpiadas", gin.H{"sesiones_limpiadas": n})
}
