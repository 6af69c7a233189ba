// Package app wires repositories, services and handlers into a runnable
// application shared by the API server and budgetctl.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/split-budget/internal/domain/auth/handler"
	"github.com/FACorreiaa/split-budget/internal/domain/auth/repository"
	"github.com/FACorreiaa/split-budget/internal/domain/auth/service"
	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	budgethandler "github.com/FACorreiaa/split-budget/internal/domain/budget/handler"
	"github.com/FACorreiaa/split-budget/internal/domain/categorization"
	"github.com/FACorreiaa/split-budget/internal/domain/category"
	categoryhandler "github.com/FACorreiaa/split-budget/internal/domain/category/handler"
	importhandler "github.com/FACorreiaa/split-budget/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/split-budget/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/split-budget/internal/domain/import/service"
	"github.com/FACorreiaa/split-budget/internal/domain/summary"
	summaryhandler "github.com/FACorreiaa/split-budget/internal/domain/summary/handler"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	transactionhandler "github.com/FACorreiaa/split-budget/internal/domain/transaction/handler"
	"github.com/FACorreiaa/split-budget/internal/middleware"

	"github.com/FACorreiaa/split-budget/pkg/config"
	"github.com/FACorreiaa/split-budget/pkg/cron"
	"github.com/FACorreiaa/split-budget/pkg/db"
	"github.com/FACorreiaa/split-budget/pkg/email"
	"github.com/FACorreiaa/split-budget/pkg/metrics"
	"github.com/FACorreiaa/split-budget/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	AuthRepo        repository.AuthRepository
	BudgetRepo      *budget.PostgresRepository
	CategoryRepo    *category.PostgresRepository
	TransactionRepo *transaction.PostgresRepository
	ImportRepo      importrepo.ImportRepository
	SummaryRepo     *summary.PostgresRepository

	// Services
	TokenManager          service.TokenManager
	AuthService           *service.AuthService
	BudgetService         *budget.Service
	CategoryService       *category.Service
	CategorizationService *categorization.Service
	TransactionService    *transaction.Service
	ImportService         *importservice.ImportService
	SummaryService        *summary.Service
	FileStorage           storage.Storage
	Scheduler             *cron.Scheduler

	// HTTP plumbing
	SessionStore  sessions.Store
	IPResolver    *middleware.ClientIPResolver
	Authenticator *middleware.Authenticator
	CSRF          *middleware.CSRF
	GlobalLimiter *middleware.RateLimiter
	AuthLimiter   *middleware.RateLimiter

	// Handlers
	AuthHandler        *handler.AuthHandler
	BudgetHandler      *budgethandler.BudgetHandler
	CategoryHandler    *categoryhandler.CategoryHandler
	TransactionHandler *transactionhandler.TransactionHandler
	ImportHandler      *importhandler.ImportHandler
	SummaryHandler     *summaryhandler.SummaryHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = metrics.New()
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// OpenDatabase connects to Postgres without touching migrations.
func OpenDatabase(cfg *config.Config, logger *slog.Logger) (*db.DB, error) {
	return db.New(db.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, logger)
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := OpenDatabase(d.Config, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		d.DB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.AuthRepo = repository.NewPostgresAuthRepository(d.DB.Pool)
	d.BudgetRepo = budget.NewPostgresRepository(d.DB.Pool)
	d.CategoryRepo = category.NewPostgresRepository(d.DB.Pool)
	d.TransactionRepo = transaction.NewPostgresRepository(d.DB.Pool)
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.SummaryRepo = summary.NewPostgresRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	jwtSecret := []byte(d.Config.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		return fmt.Errorf("jwt secret is required")
	}

	// Summaries sit at the bottom: every write path recomputes through them.
	d.SummaryService = summary.NewService(d.SummaryRepo, d.BudgetRepo, d.Logger).WithMetrics(d.Metrics)
	d.BudgetService = budget.NewService(d.BudgetRepo, d.Logger).WithRecomputer(d.SummaryService)

	d.CategoryService = category.NewService(d.CategoryRepo, d.Logger).WithRecomputer(d.SummaryService)
	d.CategorizationService = categorization.NewService(d.CategoryService, d.Logger)
	d.CategoryService.WithInvalidator(d.CategorizationService)

	d.TransactionService = transaction.NewService(d.TransactionRepo, d.CategoryService, d.Logger).
		WithRecomputer(d.SummaryService)

	fileStorage, err := storage.New(d.Config.Storage)
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.ImportService = importservice.NewImportService(d.ImportRepo, d.CategorizationService, d.Config.Import, d.Logger).
		WithStorage(d.FileStorage).
		WithRecomputer(d.SummaryService).
		WithMetrics(d.Metrics)

	d.TokenManager = service.NewTokenManager(jwtSecret, jwtSecret, d.Config.Auth.AccessTokenTTL, d.Config.Auth.RefreshTokenTTL)
	sender := email.NewSender(d.Config.Email.ResendAPIKey, d.Config.Email.FromAddress, d.Config.Email.AppURL, d.Logger)
	d.AuthService = service.NewAuthService(
		d.AuthRepo,
		d.TokenManager,
		sender,
		d.Logger,
		d.Config.Auth.RefreshTokenTTL,
	).WithCategorySeeder(d.CategoryService)

	d.Scheduler = cron.NewScheduler(d.SummaryService, d.AuthRepo, d.Config.Jobs, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers builds the HTTP middleware and handlers.
func (d *Dependencies) initHandlers() error {
	resolver, err := middleware.NewClientIPResolver(d.Config.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("failed to parse trusted proxies: %w", err)
	}
	d.IPResolver = resolver

	store := middleware.NewCookieStore(d.Config.Auth.SessionSecret, d.Config.Auth.CookieSecure, d.Config.Auth.CookieDomain)
	d.SessionStore = store
	d.Authenticator = middleware.NewAuthenticator(d.AuthService, d.Logger)
	d.CSRF = middleware.NewCSRF(store, d.Logger, middleware.AccessTokenCookie, handler.RefreshTokenCookie)

	d.GlobalLimiter = middleware.NewRateLimiter("global",
		rate.Limit(d.Config.Server.RateLimitPerSecond), d.Config.Server.RateLimitBurst,
		resolver, d.Metrics, d.Logger)
	perMinute := d.Config.Server.AuthRateLimitPerMinute
	d.AuthLimiter = middleware.NewRateLimiter("auth",
		rate.Every(time.Minute/time.Duration(perMinute)), perMinute,
		resolver, d.Metrics, d.Logger)

	oauth := handler.NewOAuth(handler.OAuthConfig{
		GoogleClientID:      d.Config.OAuth.GoogleClientID,
		GoogleClientSecret:  d.Config.OAuth.GoogleClientSecret,
		CallbackBaseURL:     d.Config.OAuth.CallbackBaseURL,
		FrontendRedirectURL: d.Config.OAuth.FrontendRedirectURL,
	}, store)
	if oauth == nil {
		d.Logger.Info("oauth login disabled, no provider configured")
	}

	d.AuthHandler = handler.NewAuthHandler(d.AuthService, resolver, handler.CookieConfig{
		Domain: d.Config.Auth.CookieDomain,
		Secure: d.Config.Auth.CookieSecure,
	}, oauth, d.Logger)
	d.BudgetHandler = budgethandler.NewBudgetHandler(d.BudgetService, d.Logger)
	d.CategoryHandler = categoryhandler.NewCategoryHandler(d.CategoryService, d.Logger)
	d.TransactionHandler = transactionhandler.NewTransactionHandler(d.TransactionService, d.Logger)
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Import.MaxFileSizeBytes, d.Logger)
	d.SummaryHandler = summaryhandler.NewSummaryHandler(d.SummaryService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.GlobalLimiter != nil {
		d.GlobalLimiter.Stop()
	}
	if d.AuthLimiter != nil {
		d.AuthLimiter.Stop()
	}
	if d.CategorizationService != nil {
		d.CategorizationService.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
