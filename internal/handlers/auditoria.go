package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"incentivos/api/internal/middleware"
	"incentivos/api/internal/models"
)

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

// SearchAudit filters by ejecutado_por_id, accion, modelo and fecha
// (YYYY-MM-DD), paginated by page and page_size.
func (h HandlerSet) SearchAudit(c *gin.Context) {
	var filter models.AuditFilter

	if raw := c.Query("ejecutado_por_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "Identificador no válido")
			return
		}
		filter.ActorID = &id
	}
	if raw := c.Query("accion"); raw != "" {
		action := models.AuditAction(strings.ToUpper(raw))
		filter.Action = &action
	}
	filter.Model = strings.TrimSpace(c.Query("modelo"))

	day, ok := parseDay(c.Query("fecha"))
	if !ok {
		fail(c, http.StatusBadRequest, "Fecha no válida, use el formato AAAA-MM-DD")
		return
	}
	filter.Date = day

	result, err := h.audit.Search(c.Request.Context(), filter, queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Logs paginados obtenidos", result)
}
