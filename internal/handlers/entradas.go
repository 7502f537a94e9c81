package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"incentivos/api/internal/middleware"
	"incentivos/api/internal/models"
)

func (h HandlerSet) ListEntradas(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	fecha, ok := parseDay(c.Query("fecha"))
	if !ok {
		fail(c, http.StatusBadRequest, "Fecha no válida, use el formato AAAA-MM-DD")
		return
	}
	filter := models.LineaFilter{Fecha: fecha, Lote: strings.TrimSpace(c.Query("lote"))}

	result, err := h.entradas.List(c.Request.Context(), linea, filter, queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	data := make([]map[string]any, len(result.Data))
	for i := range result.Data {
		data[i] = result.Data[i].Snapshot()
	}
	respond(c, http.StatusOK, fmt.Sprintf("Lineas paginadas de la Línea %d obtenidas", linea),
		models.NewPage(data, result.TotalRecords, result.Page, result.PageSize))
}

func (h HandlerSet) GetEntrada(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	record, err := h.entradas.Get(c.Request.Context(), linea, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Producción linea entrada obtenida", record.Snapshot())
}

func (h HandlerSet) RemoveEntrada(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.entradas.Remove(c.Request.Context(), principal(c).UserID, linea, id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Linea Entrada removida", gin.H{"id_linea_entrada_removida": id})
}

func (h HandlerSet) UpdateEntradaCodigoParrilla(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req parrillaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	record, err := h.entradas.UpdateCodigoParrilla(c.Request.Context(), principal(c).UserID, linea, id, req.Valor)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Código parrilla actualizado correctamente", record.Snapshot())
}

func (h HandlerSet) AgregarEntradaPanza(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	input, ok := bindPanza(c)
	if !ok {
		return
	}

	n, err := h.entradas.AgregarPanza(c.Request.Context(), principal(c).UserID, linea, input)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Panza agregada correctamente", gin.H{"registros_actualizados": n})
}
