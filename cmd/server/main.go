package main

import (
	"context"
	"html/template"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"tagihin_dashboard/internal/config"
	"tagihin_dashboard/internal/format"
	"tagihin_dashboard/internal/handlers"
	appMiddleware "tagihin_dashboard/internal/middleware"
	"tagihin_dashboard/internal/platform"
	"tagihin_dashboard/internal/session"
)

// TemplateRenderer is a custom html/template renderer for Echo
// Uses per-page template cloning to allow each page to define its own blocks
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer creates a template renderer with per-page cloning
func NewTemplateRenderer() *TemplateRenderer {
	templates := make(map[string]*template.Template)

	funcs := template.FuncMap{
		"rupiah":    format.Rupiah,
		"date":      format.Date,
		"countdown": format.Countdown,
	}

	// Parse base layout and partials as the foundation
	baseTemplate := template.Must(template.New("base").Funcs(funcs).ParseGlob("web/templates/layouts/*.html"))
	template.Must(baseTemplate.ParseGlob("web/templates/partials/*.html"))

	// Find all page templates and clone base for each
	pages, err := filepath.Glob("web/templates/pages/*.html")
	if err != nil {
		log.Fatal(err)
	}

	for _, page := range pages {
		pageName := filepath.Base(page)
		// Clone the base template for this page
		pageTemplate := template.Must(baseTemplate.Clone())
		// Parse the page-specific template
		template.Must(pageTemplate.ParseFiles(page))
		templates[pageName] = pageTemplate
	}

	// Also parse standalone templates (like login) that don't use the base layout
	standalonePages, _ := filepath.Glob("web/templates/*.html")
	for _, page := range standalonePages {
		pageName := filepath.Base(page)
		if _, exists := templates[pageName]; !exists {
			templates[pageName] = template.Must(template.New(pageName).Funcs(funcs).ParseFiles(page))
		}
	}

	return &TemplateRenderer{templates: templates}
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.templates[name]
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "Template not found: "+name)
	}
	// Page templates render through the base layout; standalone templates
	// (login, register, error) execute directly
	if tmpl.Lookup("base") != nil {
		return tmpl.ExecuteTemplate(w, "base", data)
	}
	return tmpl.ExecuteTemplate(w, name, data)
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Credential store: Redis when configured, in-process otherwise
	var credStore session.CredentialStore
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisCredentialStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisStore.Close()
		credStore = redisStore
		logger.Info("redis credential store ready")
	} else {
		credStore = session.NewMemoryCredentialStore()
		logger.Warn("REDIS_URL not set, sessions will not survive a restart")
	}

	hub := session.NewSuspensionHub(logger)

	// The 401 hook needs the session manager and the tracker registry,
	// which in turn need the client; bind them late through the closure.
	var sessions *session.Manager
	var trackers *handlers.TrackerRegistry
	apiClient := platform.NewClient(cfg.PlatformAPIURL, logger,
		platform.WithPublisher(hub),
		platform.WithUnauthorizedHook(func(ctx context.Context, sessionID string) {
			if sessions != nil {
				sessions.InvalidateCredential(ctx, sessionID)
			}
			if trackers != nil {
				trackers.DropSession(sessionID)
			}
		}))

	sessions = session.NewManager(apiClient, hub, credStore, logger)
	defer sessions.Close()

	trackers = handlers.NewTrackerRegistry(apiClient, logger)
	defer trackers.Close()

	// Reclaim trackers for sessions that fade out through the credential TTL
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go trackers.RunSweeper(sweepCtx, time.Hour, 7*24*time.Hour)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Template renderer with per-page cloning
	e.Renderer = NewTemplateRenderer()

	// Static file serving
	e.Static("/static", "web/static")

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(sessions, trackers, logger, cfg.Production())
	dashboardHandler := handlers.NewDashboardHandler(trackers, logger)
	billingHandler := handlers.NewBillingHandler(apiClient, trackers, logger)

	// Public routes
	e.GET("/login", authHandler.LoginPage)
	e.GET("/register", authHandler.RegisterPage)
	e.POST("/auth/login", authHandler.HandleLogin)
	e.POST("/auth/register", authHandler.HandleRegister)
	e.POST("/auth/logout", authHandler.HandleLogout)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Protected routes
	protected := e.Group("")
	protected.Use(appMiddleware.RequireSession(sessions))
	protected.GET("/dashboard", dashboardHandler.Dashboard)
	protected.POST("/trial-banner/dismiss", dashboardHandler.DismissBanner)

	// Billing routes
	protected.GET("/billing", billingHandler.BillingPage)
	protected.GET("/billing/status", billingHandler.Status)
	protected.POST("/billing/refresh", billingHandler.Refresh)
	protected.POST("/billing/invoices/:id/method", billingHandler.SelectMethod)
	protected.POST("/billing/invoices/:id/cancel", billingHandler.CancelMethod)
	protected.POST("/billing/invoices/:id/refresh-qr", billingHandler.RefreshQR)

	// Redirect root to dashboard (or login if not authenticated)
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusTemporaryRedirect, "/dashboard")
	})

	logger.Info("server starting", zap.String("port", cfg.Port))
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
