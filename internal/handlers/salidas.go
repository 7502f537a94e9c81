package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"incentivos/api/internal/middleware"
	"incentivos/api/internal/models"
	"incentivos/api/internal/service"
)

func paramLinea(c *gin.Context) (int, bool) {
	linea, err := strconv.Atoi(c.Param("linea"))
	if err != nil || !models.ValidLinea(linea) {
		fail(c, http.StatusBadRequest, "Línea de producción no válida")
		return 0, false
	}
	return linea, true
}

func (h HandlerSet) ListSalidas(c *gin.Context) {
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

	result, err := h.salidas.List(c.Request.Context(), linea, filter, queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	data := make([]map[string]any, len(result.Data))
	for i := range result.Data {
		data[i] = result.Data[i].Snapshot()
	}
	respond(c, http.StatusOK, fmt.Sprintf("Producción de Linea Salida %d obtenidas", linea),
		models.NewPage(data, result.TotalRecords, result.Page, result.PageSize))
}

func (h HandlerSet) GetSalida(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	record, err := h.salidas.Get(c.Request.Context(), linea, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Producción linea salida obtenida", record.Snapshot())
}

func (h HandlerSet) RemoveSalida(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.salidas.Remove(c.Request.Context(), principal(c).UserID, linea, id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Linea Salida removida", gin.H{"id_linea_salida_removida": id})
}

type agregarTaraRequest struct {
	TaraID int64 `json:"tara_id" binding:"required"`
}

func (h HandlerSet) AgregarTara(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req agregarTaraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	record, err := h.salidas.AgregarTara(c.Request.Context(), principal(c).UserID, linea, id, req.TaraID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Tara agregada correctamente", record.Snapshot())
}

type panzaRequest struct {
	Fecha  string          `json:"fecha" binding:"required"`
	Lote   string          `json:"lote" binding:"required"`
	PesoKg decimal.Decimal `json:"peso_kg"`
}

func bindPanza(c *gin.Context) (service.PanzaInput, bool) {
	var req panzaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return service.PanzaInput{}, false
	}
	fecha, err := time.Parse(time.DateOnly, req.Fecha)
	if err != nil {
		fail(c, http.StatusBadRequest, "Fecha no válida, use el formato AAAA-MM-DD")
		return service.PanzaInput{}, false
	}
	return service.PanzaInput{Fecha: fecha, Lote: req.Lote, PesoKg: req.PesoKg}, true
}

func (h HandlerSet) AgregarPanza(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	input, ok := bindPanza(c)
	if !ok {
		return
	}

	n, err := h.salidas.AgregarPanza(c.Request.Context(), principal(c).UserID, linea, input)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Panza agregada correctamente", gin.H{"registros_actualizados": n})
}

type parrillaRequest struct {
	Valor int `json:"valor"`
}

func (h HandlerSet) UpdateCodigoParrilla(c *gin.Context) {
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

	record, err := h.salidas.UpdateCodigoParrilla(c.Request.Context(), principal(c).UserID, linea, id, req.Valor)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Código de parrilla actualizado", record.Snapshot())
}

type loteRequest struct {
	IDs  []int64 `json:"ids"`
	Lote string  `json:"lote"`
}

func (h HandlerSet) UpdateLote(c *gin.Context) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	var req loteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	n, err := h.salidas.UpdateLoteBatch(c.Request.Context(), principal(c).UserID, linea, req.IDs, req.Lote)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Lote actualizado correctamente", gin.H{"registros_actualizados": n})
}

func (h HandlerSet) CreateMiga(c *gin.Context) {
	h.saveMiga(c, http.StatusCreated, "Miga registrada", h.salidas.CreateMiga)
}

func (h HandlerSet) UpdateMiga(c *gin.Context) {
	h.saveMiga(c, http.StatusOK, "Miga actualizada", h.salidas.UpdateMiga)
}

type migaFunc func(ctx context.Context, actorID int64, linea int, input service.MigaInput) (models.LineaSalidaMiga, error)

func (h HandlerSet) saveMiga(c *gin.Context, status int, message string, save migaFunc) {
	linea, ok := paramLinea(c)
	if !ok {
		return
	}
	var req service.MigaInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	record, err := save(c.Request.Context(), principal(c).UserID, linea, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	respond(c, status, message, record.Snapshot())
}
