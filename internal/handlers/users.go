package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"incentivos/api/internal/middleware"
	"incentivos/api/internal/service"
)

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "Identificador no válido")
		return 0, false
	}
	return id, true
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var req service.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), principal(c).UserID, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Usuario creado", user.Snapshot())
}

func (h HandlerSet) DeactivateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.users.DeactivateUser(c.Request.Context(), principal(c).UserID, id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Usuario marcado como inactivo", gin.H{"id_usuario": id})
}

type updatePasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

func (h HandlerSet) UpdatePassword(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), principal(c).UserID, id, req.NewPassword); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Contraseña cambiada exitosamente", gin.H{"password_changed": true})
}
