package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"incentivos/api/internal/config"
	"incentivos/api/internal/database"
	"incentivos/api/internal/middleware"
	"incentivos/api/internal/models"
	"incentivos/api/internal/queue"
	"incentivos/api/internal/repository"
	"incentivos/api/internal/security"
	"incentivos/api/internal/service"
)

type AuthUseCase interface {
	Login(ctx context.Context, input service.LoginInput) (models.LoginResult, error)
	VerifyToken(ctx context.Context, token string) (*models.Principal, error)
	RefreshToken(ctx context.Context, token, ip, userAgent string) (service.RefreshResult, error)
	Logout(ctx context.Context, token string) (bool, error)
	LogoutAll(ctx context.Context, userID int64) (int64, error)
	ListSessions(ctx context.Context, userID int64) ([]models.Session, error)
	CleanupExpiredSessions(ctx context.Context) (int64, error)
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

type UserUseCase interface {
	CreateUser(ctx context.Context, actorID int64, input service.CreateUserInput) (models.User, error)
	DeactivateUser(ctx context.Context, actorID, userID int64) error
	ChangePassword(ctx context.Context, actorID, userID int64, password string) error
	ChangeOwnPassword(ctx context.Context, userID int64, current, password string) error
}

type AuditQuery interface {
	Search(ctx context.Context, filter models.AuditFilter, page, pageSize int) (models.Page[models.AuditLog], error)
}

type SalidaUseCase interface {
	List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) (models.Page[models.LineaSalidaMiga], error)
	Get(ctx context.Context, linea int, id int64) (models.LineaSalida, error)
	AgregarTara(ctx context.Context, actorID int64, linea int, id, taraID int64) (models.LineaSalida, error)
	AgregarPanza(ctx context.Context, actorID int64, linea int, input service.PanzaInput) (int, error)
	UpdateCodigoParrilla(ctx context.Context, actorID int64, linea int, id int64, valor int) (models.LineaSalida, error)
	UpdateLoteBatch(ctx context.Context, actorID int64, linea int, ids []int64, lote string) (int, error)
	CreateMiga(ctx context.Context, actorID int64, linea int, input service.MigaInput) (models.LineaSalidaMiga, error)
	UpdateMiga(ctx context.Context, actorID int64, linea int, input service.MigaInput) (models.LineaSalidaMiga, error)
	Remove(ctx context.Context, actorID int64, linea int, id int64) error
}

type EntradaUseCase interface {
	List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) (models.Page[models.LineaEntrada], error)
	Get(ctx context.Context, linea int, id int64) (models.LineaEntrada, error)
	AgregarPanza(ctx context.Context, actorID int64, linea int, input service.PanzaInput) (int, error)
	UpdateCodigoParrilla(ctx context.Context, actorID int64, linea int, id int64, valor int) (models.LineaEntrada, error)
	Remove(ctx context.Context, actorID int64, linea int, id int64) error
}

type TaraUseCase interface {
	Create(ctx context.Context, actorID int64, input service.TaraInput) (models.Tara, error)
	List(ctx context.Context, onlyActive bool) ([]models.Tara, error)
	Get(ctx context.Context, id int64) (models.Tara, error)
	SetPrincipal(ctx context.Context, actorID, id int64) (models.Tara, error)
}

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

type UseCases struct {
	Auth    AuthUseCase
	Users   UserUseCase
	Audit   AuditQuery
	Salidas  SalidaUseCase
	Entradas EntradaUseCase
	Taras    TaraUseCase
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	auth         AuthUseCase
	users        UserUseCase
	audit        AuditQuery
	salidas      SalidaUseCase
	entradas     EntradaUseCase
	taras        TaraUseCase
	checks       map[string]HealthCheck
	loginLimiter *middleware.IPRateLimiter
}

// NewHandlerSet wires repositories and services over the shared pool and
// redis client.
func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig) (HandlerSet, error) {
	tokens, err := security.NewTokenManager(cfg.Security)
	if err != nil {
		return HandlerSet{}, err
	}
	hasher := security.NewPasswordHasher(cfg.Security.PasswordIterations)
	tx := database.NewTransactor(db)

	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	salidaRepo := repository.NewLineaSalidaRepository(db)
	entradaRepo := repository.NewLineaEntradaRepository(db)
	taraRepo := repository.NewTaraRepository(db)
	migaRepo := repository.NewMigaRepository(db)

	deadLetters := queue.NewDeadLetters(cache, cfg.Jobs.DeadLetterStream)
	audit := service.NewAuditService(auditRepo, userRepo, deadLetters, log)

	uc := UseCases{
		Auth:     service.NewAuthService(userRepo, roleRepo, sessionRepo, tx, tokens, hasher, log),
		Users:    service.NewUserService(userRepo, roleRepo, sessionRepo, tx, hasher, audit, log),
		Audit:    audit,
		Salidas:  service.NewSalidaService(salidaRepo, taraRepo, migaRepo, tx, audit, log),
		Entradas: service.NewEntradaService(entradaRepo, tx, audit, log),
		Taras:    service.NewTaraService(taraRepo, tx, audit, log),
	}
	checks := map[string]HealthCheck{
		"database": db.Ping,
		"cache":    func(ctx context.Context) error { return cache.Ping(ctx).Err() },
	}
	return New(log, cfg, uc, checks), nil
}

func New(log zerolog.Logger, cfg *config.AppConfig, uc UseCases, checks map[string]HealthCheck) HandlerSet {
	return HandlerSet{
		log:          log,
		cfg:          cfg,
		auth:         uc.Auth,
		users:        uc.Users,
		audit:        uc.Audit,
		salidas:      uc.Salidas,
		entradas:     uc.Entradas,
		taras:        uc.Taras,
		checks:       checks,
		loginLimiter: middleware.NewIPRateLimiter(cfg.Security.LoginRatePerSecond, cfg.Security.LoginBurst),
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	authn := middleware.Auth(h.auth)
	read := func(m models.Module) gin.HandlerFunc { return middleware.RequirePermission(m, models.PermissionRead) }
	write := func(m models.Module) gin.HandlerFunc { return middleware.RequirePermission(m, models.PermissionWrite) }

	auth := router.Group("/auth")
	{
		auth.POST("/login", middleware.RateLimit(h.loginLimiter), h.Login)
		auth.POST("/logout", h.Logout)
		auth.POST("/verify-token", h.VerifyToken)
		auth.POST("/refresh-token", h.RefreshToken)

		protected := auth.Group("", authn)
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.POST("/logout-all", h.LogoutAll)
		protected.POST("/change-password", h.ChangeOwnPassword)
		protected.POST("/sessions/cleanup", write(models.ModuleAdministracion), h.CleanupSessions)
	}

	users := router.Group("/usuarios", authn)
	users.POST("", write(models.ModuleUsuarios), h.CreateUser)
	users.DELETE("/:id", write(models.ModuleUsuarios), h.DeactivateUser)
	users.PUT("/:id/update-password", write(models.ModuleUsuarios), h.UpdatePassword)

	router.GET("/auditoria", authn, read(models.ModuleAuditoria), h.SearchAudit)

	salidas := router.Group("/lineas/:linea/salidas", authn)
	salidas.GET("", read(models.ModuleProduccion), h.ListSalidas)
	salidas.GET("/:id", read(models.ModuleProduccion), h.GetSalida)
	salidas.DELETE("/:id", write(models.ModuleProduccion), h.RemoveSalida)
	salidas.PATCH("/:id/agregar_tara", write(models.ModuleProduccion), h.AgregarTara)
	salidas.PATCH("/:id/parrilla", write(models.ModuleProduccion), h.UpdateCodigoParrilla)
	salidas.POST("/panza", write(models.ModuleProduccion), h.AgregarPanza)
	salidas.PATCH("/lote", write(models.ModuleProduccion), h.UpdateLote)
	salidas.POST("/miga", write(models.ModuleProduccion), h.CreateMiga)
	salidas.PUT("/miga", write(models.ModuleProduccion), h.UpdateMiga)

	entradas := router.Group("/lineas/:linea/entradas", authn)
	entradas.GET("", read(models.ModuleProduccion), h.ListEntradas)
	entradas.GET("/:id", read(models.ModuleProduccion), h.GetEntrada)
	entradas.DELETE("/:id", write(models.ModuleProduccion), h.RemoveEntrada)
	entradas.PATCH("/:id/parrilla", write(models.ModuleProduccion), h.UpdateEntradaCodigoParrilla)
	entradas.POST("/panza", write(models.ModuleProduccion), h.AgregarEntradaPanza)

	taras := router.Group("/taras", authn)
	taras.POST("", write(models.ModuleControlTara), h.CreateTara)
	taras.GET("", read(models.ModuleControlTara), h.ListTaras)
	taras.GET("/:id", read(models.ModuleControlTara), h.GetTara)
	taras.PUT("/:id/principal", write(models.ModuleControlTara), h.SetTaraPrincipal)
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

func badRequest(c *gin.Context) {
	fail(c, http.StatusBadRequest, "Datos de entrada inválidos")
}

func principal(c *gin.Context) *models.Principal {
	p, _ := middleware.CurrentPrincipal(c)
	return p
}

func parseDay(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
