package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"incentivos/api/internal/middleware"
	"incentivos/api/internal/service"
)

func (h HandlerSet) CreateTara(c *gin.Context) {
	var req service.TaraInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	tara, err := h.taras.Create(c.Request.Context(), principal(c).UserID, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Tara creada", tara.Snapshot())
}

// ListTaras returns every tare, or only active ones with ?activas=true.
func (h HandlerSet) ListTaras(c *gin.Context) {
	onlyActive, _ := strconv.ParseBool(c.Query("activas"))

	taras, err := h.taras.List(c.Request.Context(), onlyActive)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	data := make([]map[string]any, len(taras))
	for i := range taras {
		data[i] = taras[i].Snapshot()
	}
	respond(c, http.StatusOK, "Taras obtenidas", data)
}

func (h HandlerSet) GetTara(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	tara, err := h.taras.Get(c.Request.Context(), id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Tara obtenida", tara.Snapshot())
}

func (h HandlerSet) SetTaraPrincipal(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	tara, err := h.taras.SetPrincipal(c.Request.Context(), principal(c).UserID, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Tara principal actualizada", tara.Snapshot())
}
