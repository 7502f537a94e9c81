package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/config"
	"incentivos/api/internal/models"
	"incentivos/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	principals map[string]*models.Principal
	loggedOut  []string
	swept      int64
}

func (f *fakeAuth) Login(_ context.Context, in service.LoginInput) (models.LoginResult, error) {
	if in.Password != "Segura#2025" {
		return models.LoginResult{}, apperr.Validation("Credenciales inválidas")
	}
	return models.LoginResult{UserID: 1, Username: in.Username, Token: "good", LineasPermitidas: []int64{2}}, nil
}

func (f *fakeAuth) VerifyToken(_ context.Context, token string) (*models.Principal, error) {
	return f.principals[token], nil
}

func (f *fakeAuth) RefreshToken(_ context.Context, token, _, _ string) (service.RefreshResult, error) {
	p, ok := f.principals[token]
	if !ok {
		return service.RefreshResult{}, apperr.ErrSessionInvalid
	}
	return service.RefreshResult{Token: "rotated", User: p}, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) (bool, error) {
	if _, ok := f.principals[token]; !ok {
		return false, nil
	}
	f.loggedOut = append(f.loggedOut, token)
	return true, nil
}

func (f *fakeAuth) LogoutAll(context.Context, int64) (int64, error) { return 2, nil }

func (f *fakeAuth) ListSessions(_ context.Context, userID int64) ([]models.Session, error) {
	ip := "10.0.0.5"
	started := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	return []models.Session{
		{ID: 11, UserID: userID, Token: "secret-a", StartedAt: started, IPAddress: &ip, IsActive: true},
		{ID: 12, UserID: userID, Token: "secret-b", StartedAt: started, IsActive: true},
	}, nil
}

func (f *fakeAuth) CleanupExpiredSessions(context.Context) (int64, error) {
	f.swept++
	return 4, nil
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*models.Principal, error) {
	p, ok := f.principals[token]
	if !ok {
		return nil, apperr.ErrTokenInvalid
	}
	return p, nil
}

type fakeUsers struct {
	created []service.CreateUserInput
}

func (f *fakeUsers) CreateUser(_ context.Context, _ int64, in service.CreateUserInput) (models.User, error) {
	f.created = append(f.created, in)
	return models.User{ID: 9, Username: in.Username, IsActive: true}, nil
}

func (f *fakeUsers) DeactivateUser(_ context.Context, _, id int64) error {
	if id == 404 {
		return apperr.NotFound("Usuario no encontrado")
	}
	return nil
}

func (f *fakeUsers) ChangePassword(context.Context, int64, int64, string) error { return nil }

func (f *fakeUsers) ChangeOwnPassword(context.Context, int64, string, string) error { return nil }

type fakeAudit struct {
	filter   models.AuditFilter
	page     int
	pageSize int
}

func (f *fakeAudit) Search(_ context.Context, filter models.AuditFilter, page, pageSize int) (models.Page[models.AuditLog], error) {
	f.filter, f.page, f.pageSize = filter, page, pageSize
	return models.NewPage([]models.AuditLog{{ID: 1, Model: "control_tara", Action: models.AuditCreate}}, 1, 1, 20), nil
}

type fakeSalidas struct {
	panza   service.PanzaInput
	actor   int64
	removed []int64
}

func (f *fakeSalidas) List(_ context.Context, _ int, _ models.LineaFilter, page, pageSize int) (models.Page[models.LineaSalidaMiga], error) {
	rows := []models.LineaSalidaMiga{{LineaSalida: models.LineaSalida{ID: 5, PesoKg: decimal.RequireFromString("9.75")}}}
	return models.NewPage(rows, 1, 1, 20), nil
}

func (f *fakeSalidas) Get(_ context.Context, _ int, id int64) (models.LineaSalida, error) {
	if id != 5 {
		return models.LineaSalida{}, apperr.NotFound("La línea de salida no existe")
	}
	return models.LineaSalida{ID: 5, PesoKg: decimal.RequireFromString("10.5")}, nil
}

func (f *fakeSalidas) AgregarTara(_ context.Context, _ int64, _ int, id, _ int64) (models.LineaSalida, error) {
	return models.LineaSalida{ID: id, PesoKg: decimal.RequireFromString("9.75")}, nil
}

func (f *fakeSalidas) AgregarPanza(_ context.Context, actorID int64, _ int, in service.PanzaInput) (int, error) {
	f.actor, f.panza = actorID, in
	return 3, nil
}

func (f *fakeSalidas) UpdateCodigoParrilla(_ context.Context, _ int64, _ int, id int64, valor int) (models.LineaSalida, error) {
	if valor == 0 {
		return models.LineaSalida{}, apperr.Validation("El valor no puede ser cero.")
	}
	return models.LineaSalida{ID: id}, nil
}

func (f *fakeSalidas) UpdateLoteBatch(_ context.Context, _ int64, _ int, ids []int64, _ string) (int, error) {
	return len(ids), nil
}

func (f *fakeSalidas) CreateMiga(_ context.Context, _ int64, _ int, in service.MigaInput) (models.LineaSalidaMiga, error) {
	return models.LineaSalidaMiga{LineaSalida: models.LineaSalida{ID: in.Registro}}, nil
}

func (f *fakeSalidas) UpdateMiga(context.Context, int64, int, service.MigaInput) (models.LineaSalidaMiga, error) {
	return models.LineaSalidaMiga{}, apperr.NotFound("La miga no existe")
}

func (f *fakeSalidas) Remove(_ context.Context, _ int64, _ int, id int64) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeEntradas struct {
	panza   service.PanzaInput
	removed []int64
}

func (f *fakeEntradas) List(_ context.Context, _ int, _ models.LineaFilter, page, pageSize int) (models.Page[models.LineaEntrada], error) {
	sec := "300"
	rows := []models.LineaEntrada{{ID: 8, PesoKg: decimal.RequireFromString("2.5"), CodigoSecuencia: &sec}}
	return models.NewPage(rows, 1, 1, 20), nil
}

func (f *fakeEntradas) Get(_ context.Context, _ int, id int64) (models.LineaEntrada, error) {
	if id != 8 {
		return models.LineaEntrada{}, apperr.NotFound("La línea de entrada no existe")
	}
	return models.LineaEntrada{ID: 8}, nil
}

func (f *fakeEntradas) AgregarPanza(_ context.Context, _ int64, _ int, in service.PanzaInput) (int, error) {
	f.panza = in
	return 2, nil
}

func (f *fakeEntradas) UpdateCodigoParrilla(_ context.Context, _ int64, _ int, id int64, valor int) (models.LineaEntrada, error) {
	if valor == 0 {
		return models.LineaEntrada{}, apperr.Validation("El valor no puede ser cero.")
	}
	parrilla, sec := "4", "304"
	return models.LineaEntrada{ID: id, CodigoParrilla: &parrilla, CodigoSecuencia: &sec}, nil
}

func (f *fakeEntradas) Remove(_ context.Context, _ int64, _ int, id int64) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeTaras struct{}

func (fakeTaras) Create(_ context.Context, _ int64, in service.TaraInput) (models.Tara, error) {
	return models.Tara{ID: 1, Nombre: in.Nombre, PesoKg: in.PesoKg, IsActive: true}, nil
}

func (fakeTaras) List(context.Context, bool) ([]models.Tara, error) {
	return []models.Tara{{ID: 1, Nombre: "Bandeja", PesoKg: decimal.RequireFromString("0.75")}}, nil
}

func (fakeTaras) Get(context.Context, int64) (models.Tara, error) { return models.Tara{ID: 1}, nil }

func (fakeTaras) SetPrincipal(_ context.Context, _, id int64) (models.Tara, error) {
	return models.Tara{ID: id, IsPrincipal: true}, nil
}

type fixture struct {
	router   *gin.Engine
	auth     *fakeAuth
	users    *fakeUsers
	audit    *fakeAudit
	salidas  *fakeSalidas
	entradas *fakeEntradas
}

func grant(m models.Module, perms ...models.Permission) models.ModuleGrant {
	return models.ModuleGrant{Name: m, Permissions: perms}
}

func newFixture(checks map[string]HealthCheck) fixture {
	rw := []models.Permission{models.PermissionRead, models.PermissionWrite}
	sessionID := int64(12)
	auth := &fakeAuth{principals: map[string]*models.Principal{
		"good": {UserID: 1, Username: "supervisor", SessionID: &sessionID, Role: models.RoleView{Name: "Supervisor", Modules: []models.ModuleGrant{
			grant(models.ModuleProduccion, rw...),
			grant(models.ModuleControlTara, models.PermissionRead),
		}}},
		"admin": {UserID: 2, Username: "admin", Role: models.RoleView{Name: "Admin", Modules: []models.ModuleGrant{
			grant(models.ModuleAdministracion, rw...),
			grant(models.ModuleUsuarios, rw...),
			grant(models.ModuleAuditoria, models.PermissionRead),
			grant(models.ModuleControlTara, rw...),
		}}},
	}}
	f := fixture{auth: auth, users: &fakeUsers{}, audit: &fakeAudit{}, salidas: &fakeSalidas{}, entradas: &fakeEntradas{}}

	cfg := &config.AppConfig{Environment: "test", Security: config.SecurityConfig{LoginRatePerSecond: 100, LoginBurst: 100}}
	h := New(zerolog.Nop(), cfg, UseCases{
		Auth:    auth,
		Users:   f.users,
		Audit:   f.audit,
		Salidas:  f.salidas,
		Entradas: f.entradas,
		Taras:    fakeTaras{},
	}, checks)

	f.router = gin.New()
	h.Register(f.router.Group("/api"))
	return f
}

func call(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLogin(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodPost, "/api/auth/login", "", gin.H{"username": "operador", "password": "Segura#2025"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := envelope(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Login exitoso", body["message"])
	assert.Equal(t, "good", body["data"].(map[string]any)["token"])

	rec = call(f.router, http.MethodPost, "/api/auth/login", "", gin.H{"username": "operador", "password": "otra"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Credenciales inválidas", envelope(t, rec)["message"])

	rec = call(f.router, http.MethodPost, "/api/auth/login", "", gin.H{"username": "operador"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenEndpoints(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodPost, "/api/auth/verify-token", "", gin.H{"token": "good"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "supervisor", envelope(t, rec)["data"].(map[string]any)["username"])

	rec = call(f.router, http.MethodPost, "/api/auth/verify-token", "", gin.H{"token": "revoked"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token inválido o expirado", envelope(t, rec)["message"])

	rec = call(f.router, http.MethodPost, "/api/auth/refresh-token", "", gin.H{"token": "revoked"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/auth/logout", "", gin.H{"token": "revoked"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/auth/logout", "", gin.H{"token": "good"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"good"}, f.auth.loggedOut)
}

func TestSessionCleanupNeedsAdministracion(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodPost, "/api/auth/sessions/cleanup", "good", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/auth/sessions/cleanup", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), f.auth.swept)
	assert.Equal(t, float64(4), envelope(t, rec)["data"].(map[string]any)["sesiones_limpiadas"])
}

func TestSalidasRoutes(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodGet, "/api/lineas/2/salidas", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(f.router, http.MethodGet, "/api/lineas/2/salidas?page=1&page_size=20", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := envelope(t, rec)["data"].(map[string]any)
	rows := page["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 9.75, rows[0].(map[string]any)["peso_kg"])

	rec = call(f.router, http.MethodGet, "/api/lineas/7/salidas", "good", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(f.router, http.MethodGet, "/api/lineas/2/salidas/99", "good", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(f.router, http.MethodPatch, "/api/lineas/2/salidas/5/agregar_tara", "good", gin.H{"tara_id": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tara agregada correctamente", envelope(t, rec)["message"])

	rec = call(f.router, http.MethodPatch, "/api/lineas/2/salidas/5/parrilla", "good", gin.H{"valor": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(f.router, http.MethodPatch, "/api/lineas/2/salidas/lote", "good", gin.H{"ids": []int64{1, 2}, "lote": "L-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), envelope(t, rec)["data"].(map[string]any)["registros_actualizados"])

	rec = call(f.router, http.MethodDelete, "/api/lineas/2/salidas/5", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{5}, f.salidas.removed)
}

func TestEntradasRoutes(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodGet, "/api/lineas/3/entradas?lote=L-1", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := envelope(t, rec)["data"].(map[string]any)["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "300", rows[0].(map[string]any)["codigo_secuencia"])

	rec = call(f.router, http.MethodGet, "/api/lineas/3/entradas/99", "good", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(f.router, http.MethodPatch, "/api/lineas/3/entradas/8/parrilla", "good", gin.H{"valor": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "4", data["codigo_parrilla"])
	assert.Equal(t, "304", data["codigo_secuencia"])

	rec = call(f.router, http.MethodPatch, "/api/lineas/3/entradas/8/parrilla", "good", gin.H{"valor": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/lineas/3/entradas/panza", "good", gin.H{"fecha": "2025-08-01", "lote": "L1", "peso_kg": 0.25})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), envelope(t, rec)["data"].(map[string]any)["registros_actualizados"])
	assert.Equal(t, "L1", f.entradas.panza.Lote)

	rec = call(f.router, http.MethodDelete, "/api/lineas/3/entradas/8", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{8}, f.entradas.removed)

	rec = call(f.router, http.MethodDelete, "/api/lineas/3/entradas/8", "admin", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListSessionsHidesTokens(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodGet, "/api/auth/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(f.router, http.MethodGet, "/api/auth/sessions", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-")
	sessions := envelope(t, rec)["data"].([]any)
	require.Len(t, sessions, 2)
	assert.Equal(t, false, sessions[0].(map[string]any)["actual"])
	assert.Equal(t, true, sessions[1].(map[string]any)["actual"])
	assert.Equal(t, "10.0.0.5", sessions[0].(map[string]any)["ip_address"])
}

func TestPanzaParsesFecha(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodPost, "/api/lineas/1/salidas/panza", "good", gin.H{"fecha": "01/08/2025", "lote": "L1", "peso_kg": "0.001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/lineas/1/salidas/panza", "good", gin.H{"fecha": "2025-08-01", "lote": "L1", "peso_kg": 0.001})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), envelope(t, rec)["data"].(map[string]any)["registros_actualizados"])
	assert.Equal(t, int64(1), f.salidas.actor)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), f.salidas.panza.Fecha)
	assert.True(t, f.salidas.panza.PesoKg.Equal(decimal.RequireFromString("0.001")))
}

func TestMigaRoutes(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodPost, "/api/lineas/1/salidas/miga", "good", gin.H{"linea_id": 42, "p_miga": "1.5"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(42), envelope(t, rec)["data"].(map[string]any)["id"])

	rec = call(f.router, http.MethodPut, "/api/lineas/1/salidas/miga", "good", gin.H{"linea_id": 42, "p_miga": "1.5"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaraPermissions(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodGet, "/api/taras", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/taras", "good", gin.H{"nombre": "Bandeja", "peso_kg": "0.75"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/taras", "admin", gin.H{"nombre": "Bandeja", "peso_kg": "0.75"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = call(f.router, http.MethodPut, "/api/taras/3/principal", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, envelope(t, rec)["data"].(map[string]any)["is_principal"])
}

func TestUserRoutes(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodPost, "/api/usuarios", "good", gin.H{"username": "nuevo", "password": "Segura#2025"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(f.router, http.MethodPost, "/api/usuarios", "admin", gin.H{"username": "nuevo", "password": "Segura#2025", "id_rol": 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.users.created, 1)
	require.NotNil(t, f.users.created[0].RoleID)
	assert.Equal(t, int64(3), *f.users.created[0].RoleID)

	rec = call(f.router, http.MethodDelete, "/api/usuarios/404", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(f.router, http.MethodDelete, "/api/usuarios/abc", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchAuditFilters(t *testing.T) {
	f := newFixture(nil)

	rec := call(f.router, http.MethodGet, "/api/auditoria?ejecutado_por_id=7&accion=update&modelo=control_tara&fecha=2025-08-01&page=2&page_size=5", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.audit.filter.ActorID)
	assert.Equal(t, int64(7), *f.audit.filter.ActorID)
	assert.Equal(t, models.AuditUpdate, *f.audit.filter.Action)
	assert.Equal(t, "control_tara", f.audit.filter.Model)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), *f.audit.filter.Date)
	assert.Equal(t, 2, f.audit.page)
	assert.Equal(t, 5, f.audit.pageSize)

	rec = call(f.router, http.MethodGet, "/api/auditoria?fecha=ayer", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(f.router, http.MethodGet, "/api/auditoria", "good", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	f := newFixture(map[string]HealthCheck{"database": ok, "cache": ok})
	rec := call(f.router, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f = newFixture(map[string]HealthCheck{"database": ok, "cache": down})
	rec = call(f.router, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Checks["cache"])
	assert.Equal(t, "ok", body.Checks["database"])
}
