package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/approval"
	approvalpg "github.com/ardiwinata/qms-compliance/internal/approval/postgres"
	"github.com/ardiwinata/qms-compliance/internal/audits"
	auditspg "github.com/ardiwinata/qms-compliance/internal/audits/postgres"
	"github.com/ardiwinata/qms-compliance/internal/auth"
	"github.com/ardiwinata/qms-compliance/internal/category"
	categorypg "github.com/ardiwinata/qms-compliance/internal/category/postgres"
	"github.com/ardiwinata/qms-compliance/internal/document"
	documentpg "github.com/ardiwinata/qms-compliance/internal/document/postgres"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	eventlogpg "github.com/ardiwinata/qms-compliance/internal/eventlog/postgres"
	identitypg "github.com/ardiwinata/qms-compliance/internal/identity/postgres"
	"github.com/ardiwinata/qms-compliance/internal/notification"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	permissionpg "github.com/ardiwinata/qms-compliance/internal/permission/postgres"
	"github.com/ardiwinata/qms-compliance/internal/transport"
	"github.com/ardiwinata/qms-compliance/internal/transport/rest"
	"github.com/ardiwinata/qms-compliance/internal/transport/swagger"
	"github.com/ardiwinata/qms-compliance/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Router     *chi.Mux
	Dispatcher *notification.Dispatcher
	Documents  *document.Service
	Logger     *slog.Logger
}

// chainSubmitter breaks the construction cycle between the document and
// approval services: documents submit chains, chains call back into
// documents when they settle. The target is bound after both exist.
type chainSubmitter struct {
	svc *approval.Service
}

func (c *chainSubmitter) Submit(ctx context.Context, creatorID int64, dto approval.SubmitChainDTO) (*approval.Chain, error) {
	return c.svc.Submit(ctx, creatorID, dto)
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := swagger.ValidateSpec(context.Background(), "./api/openapi.yml"); err != nil {
		deps.Logger.Warn("openapi document failed validation", "error", err)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	go runRecycleBinPurge(purgeCtx, deps.Documents, deps.Config.Housekeeping.RecycleBinRetention, deps.Logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		stopPurge()
		deps.Dispatcher.Stop()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		stopPurge()
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

// runRecycleBinPurge drops soft-deleted documents once their retention
// window lapses. Runs daily; the first sweep happens at startup.
func runRecycleBinPurge(ctx context.Context, docs *document.Service, retention time.Duration, log *slog.Logger) {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-retention)
		if purged, err := docs.PurgeExpiredSoftDeletes(ctx, cutoff); err == nil && purged > 0 {
			log.Info("recycle bin purged", "documents", purged, "cutoff", cutoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	principalRepo := identitypg.NewPrincipalRepository(gdb)
	eventLogRepo := eventlogpg.NewEventLogRepository(gdb)
	grantRepo := permissionpg.NewGrantRepository(gdb)
	chainRepo := approvalpg.NewChainRepository(gdb)
	auditRepo := auditspg.NewAuditRepository(gdb)
	documentRepo := documentpg.NewDocumentRepository(gdb)

	perms := permission.NewService(grantRepo, nil, eventLogRepo, log)

	dispatcher := notification.NewDispatcher(notification.Config{
		MaxWorkers:   config.Notification.MaxWorkers,
		JobQueueSize: config.Notification.JobQueueSize,
	}, &notification.LogSender{Logger: log}, log)

	chains := &chainSubmitter{}
	documentService := document.NewService(documentRepo, principalRepo, perms, chains, log)
	approvalService := approval.NewService(chainRepo, principalRepo, perms, documentService, dispatcher, log)
	chains.svc = approvalService

	auditService := audits.NewService(auditRepo, principalRepo, perms, dispatcher, log)

	categoryService := category.NewService(categorypg.NewCategoryRepository(gdb), log)

	tokenGen := auth.NewJWTTokenGenerator(config.Security.AccessTokenSecret, config.Security.RefreshTokenSecret)
	if config.Security.AccessTokenDuration > 0 {
		tokenGen.AccessTokenTTL = config.Security.AccessTokenDuration
	}
	if config.Security.RefreshTokenDuration > 0 {
		tokenGen.RefreshTokenTTL = config.Security.RefreshTokenDuration
	}
	authService := auth.NewService(principalRepo, tokenGen)

	handlers := rest.Handlers{
		Auth:       auth.NewHandler(authService),
		Category:   category.NewHandler(transport.NewBaseHandler(log), categoryService),
		Document:   document.NewHandler(documentService),
		Approval:   approval.NewHandler(approvalService),
		Audit:      audits.NewHandler(auditService),
		Permission: permission.NewHandler(perms),
		EventLog:   eventlog.NewHandler(eventLogRepo),
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, handlers, perms, log)

	return &Dependencies{
		Config:     config,
		DB:         db,
		Router:     router,
		Dispatcher: dispatcher,
		Documents:  documentService,
		Logger:     log,
	}, nil
}

// initDB opens the pgx-backed connection pool used for raw queries and
// health checks.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers the ORM over the shared pool so repositories and raw
// SQL share one set of connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
}
