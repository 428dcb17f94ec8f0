package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/sudharshan/ppe-monitor/internal/api"
	"github.com/sudharshan/ppe-monitor/internal/audit"
	"github.com/sudharshan/ppe-monitor/internal/auth"
	"github.com/sudharshan/ppe-monitor/internal/cameras"
	"github.com/sudharshan/ppe-monitor/internal/clock"
	"github.com/sudharshan/ppe-monitor/internal/compliance"
	"github.com/sudharshan/ppe-monitor/internal/config"
	"github.com/sudharshan/ppe-monitor/internal/crypto"
	"github.com/sudharshan/ppe-monitor/internal/data"
	"github.com/sudharshan/ppe-monitor/internal/detect"
	"github.com/sudharshan/ppe-monitor/internal/detect/onnx"
	"github.com/sudharshan/ppe-monitor/internal/detect/remote"
	"github.com/sudharshan/ppe-monitor/internal/detections"
	"github.com/sudharshan/ppe-monitor/internal/events"
	"github.com/sudharshan/ppe-monitor/internal/health"
	"github.com/sudharshan/ppe-monitor/internal/hub"
	"github.com/sudharshan/ppe-monitor/internal/license"
	"github.com/sudharshan/ppe-monitor/internal/metrics"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
	"github.com/sudharshan/ppe-monitor/internal/pipeline"
	"github.com/sudharshan/ppe-monitor/internal/platform/paths"
	"github.com/sudharshan/ppe-monitor/internal/platform/windows"
	"github.com/sudharshan/ppe-monitor/internal/ratelimit"
	"github.com/sudharshan/ppe-monitor/internal/rules"
	"github.com/sudharshan/ppe-monitor/internal/session"
	"github.com/sudharshan/ppe-monitor/internal/snapshot"
	"github.com/sudharshan/ppe-monitor/internal/tokens"
	"github.com/sudharshan/ppe-monitor/internal/users"

	_ "github.com/sudharshan/ppe-monitor/internal/capture/ffmpeg"
)

const (
	serviceName  = "PPE-Monitor-Control"
	eventIDStart = 100
	eventIDStop  = 101
	eventIDError = 102
)

func main() {
	isService := windows.IsWindowsService()
	elog := windows.NewEventLogger(serviceName)
	defer elog.Close()

	if isService {
		elog.Info(eventIDStart, "Starting as Windows Service")
	}

	stopChan := make(chan struct{})
	if isService {
		go func() {
			if err := windows.RunAsService(serviceName, stopChan); err != nil {
				elog.Error(eventIDError, fmt.Sprintf("Service run error: %v", err))
				os.Exit(1)
			}
		}()
	}

	if err := paths.EnsureDirs(); err != nil {
		elog.Error(eventIDError, fmt.Sprintf("Platform init error: %v", err))
		log.Fatalf("Platform init error: %v", err)
	}

	configPath := paths.ResolveConfigPath("")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}
	if cfg.JWT.SigningKey == "" {
		cfg.JWT.SigningKey = "dev-secret-do-not-use-in-prod"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	sessionMgr := session.NewManager(cfg.Redis.Addr, "")
	tokenMgr := tokens.NewManager(cfg.JWT.SigningKey)

	auditService := audit.NewService(db)
	audit.ConfigureFailover(filepath.Join(paths.DataRoot(), "audit_spool"), 1024)
	auditService.StartReplayer(context.Background())

	licenseParser, err := license.NewParser("config/license_public_key.pem")
	if err != nil {
		log.Printf("Warning: Failed to load License Public Key: %v. License verification will fail.", err)
	}
	usageProvider := &license.DBUsageProvider{DB: db}
	licenseManager := license.NewManager("config/license.key", licenseParser, usageProvider, auditService)
	licenseManager.StartWatcher(context.Background())
	licenseScheduler := license.NewScheduler(licenseManager)
	licenseScheduler.Start(context.Background())

	camRepo := data.CameraModel{DB: db}
	camService := cameras.NewService(camRepo, licenseManager, auditService)
	camHandler := api.NewCameraHandler(camService)

	keyring := crypto.NewKeyring()
	if err := keyring.LoadFromEnv(); err != nil {
		log.Fatalf("Failed to initialize Keyring: %v", err)
	}
	credRepo := data.CredentialModel{DB: db}
	credService := cameras.NewCredentialService(credRepo, keyring, auditService)

	healthRepo := &data.HealthModel{DB: db}
	healthProber := health.NewStreamProber(credService)
	healthService := health.NewService(healthRepo, healthProber)
	healthHandler := api.NewHealthHandler(healthService)
	healthScheduler := health.NewScheduler(health.SchedulerConfig{}, healthService)
	healthScheduler.Start()

	blacklist, bcerr := auth.NewCachedBlacklist(auth.NewRedisBlacklist(rdb), 4096)
	if bcerr != nil {
		log.Fatalf("Blacklist cache init error: %v", bcerr)
	}
	permModel := data.PermissionModel{DB: db}

	var rootCfg struct {
		RateLimit middleware.Config `yaml:"rate_limit"`
	}
	if raw, rerr := os.ReadFile(configPath); rerr == nil {
		_ = yaml.Unmarshal(raw, &rootCfg)
	}
	limiter := ratelimit.NewLimiter(rdb, "stable-salt-val")
	permsMiddleware := middleware.NewPermissionMiddleware(permModel, camRepo)

	credHandler := api.NewCredentialHandler(credService, camService, permsMiddleware)
	jwtMiddleware := middleware.NewJWTAuth(tokenMgr, blacklist)
	rlMiddleware := middleware.NewRateLimitMiddleware(limiter, tokenMgr, rootCfg.RateLimit, rootCfg.RateLimit.Endpoints)
	auditMiddleware := middleware.NewAuditMiddleware(auditService)

	authHandler := &api.AuthHandler{
		DB:        db,
		Tokens:    tokenMgr,
		Session:   sessionMgr,
		Hasher:    auth.DefaultParams,
		Blacklist: blacklist,
	}
	auditHandler := &api.AuditHandler{Service: auditService, Perms: permsMiddleware}

	userRepo := data.UserModel{DB: db}
	userService := users.NewService(&userRepo, auditService, sessionMgr, tokenMgr)
	userHandler := &api.UserHandler{Service: userService}

	licenseHandler := &api.LicenseHandler{Manager: licenseManager}

	// --- Detection pipeline wiring ---
	loc, lerr := time.LoadLocation(cfg.Server.Timezone)
	if lerr != nil {
		log.Printf("Warning: unknown timezone %q, defaulting to UTC", cfg.Server.Timezone)
		loc = time.UTC
	}
	pipelineClock := clock.New(loc)

	detectModel, derr := buildDetector(cfg)
	if derr != nil {
		log.Fatalf("Detector init error: %v", derr)
	}
	defer detectModel.Close()

	detWatcher, werr := config.WatchDetector(configPath, detectModel, func(err error) {
		log.Printf("config: detector hot-reload failed: %v", err)
	})
	if werr != nil {
		log.Printf("Warning: detector config hot-reload disabled: %v", werr)
	} else {
		defer detWatcher.Close()
	}

	if remoteDetector, ok := detectModel.(*remote.Client); ok {
		startDetectorHealthPoller(remoteDetector)
	}

	var ruleOverride pipeline.RuleOverride
	if cfg.Rules.ScriptPath != "" {
		src, rerr := os.ReadFile(cfg.Rules.ScriptPath)
		if rerr != nil {
			log.Printf("Warning: failed to read rules script %s: %v", cfg.Rules.ScriptPath, rerr)
		} else if rs, rerr := rules.Load(string(src)); rerr != nil {
			log.Printf("Warning: failed to load rules script: %v", rerr)
		} else {
			defer rs.Close()
			ruleOverride = rs
			log.Printf("rules: loaded override script %s", cfg.Rules.ScriptPath)
		}
	}

	snapWriter, serr := buildSnapshotWriter(cfg)
	if serr != nil {
		log.Fatalf("Snapshot writer init error: %v", serr)
	}

	sink := detections.NewSink(db)

	var eventsPublisher *events.Publisher
	if cfg.Events.NatsURL != "" {
		nc, nerr := nats.Connect(cfg.Events.NatsURL, nats.Name(serviceName))
		if nerr != nil {
			log.Printf("Warning: NATS connect failed: %v. Violation events will not be published.", nerr)
		} else {
			defer nc.Close()
			eventsPublisher = events.NewPublisher(nc, cfg.Events.Subject, cfg.Events.MaxRetries)
		}
	}

	streamHub := hub.New()
	pipelineCameras := data.PipelineCameraStore{Model: camRepo}

	keyMirror := pipeline.NewKeyMirror(rdb, cfg.Tuneables().StaleThreshold)
	defer keyMirror.Close()

	pipelineManager := pipeline.NewManager(pipeline.Deps{
		Cameras:    pipelineCameras,
		Detector:   detectModel,
		Hub:        streamHub,
		Sink:       sink,
		Snapshots:  snapWriter,
		Events:     eventsPublisher,
		Clock:      pipelineClock,
		Mirror:     keyMirror,
		FileExists: fileExists,
		Tuneables:  cfg.Tuneables(),
		Rules:      ruleOverride,
	})

	usageProvider.ActiveStreams = func() int { return len(pipelineManager.Active()) }

	monitorHandler := api.NewMonitorHandler(tokenMgr, pipelineManager)
	monitorHandler.License = licenseManager
	alertHandler := api.NewAlertHandler(db)
	workerHistoryHandler := api.NewWorkerHistoryHandler(db)
	streamHandler := api.NewStreamHandler(pipelineManager)

	// --- Routes ---
	mux := http.NewServeMux()

	Protect := func(h http.Handler) http.Handler { return jwtMiddleware.Middleware(h) }

	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.Handle("/api/v1/auth/logout", Protect(http.HandlerFunc(authHandler.Logout)))
	mux.HandleFunc("/api/v1/auth/complete-reset", userHandler.CompleteReset)

	mux.Handle("POST /api/v1/cameras", Protect(permsMiddleware.RequirePermission("cameras.create", "tenant")(http.HandlerFunc(camHandler.Create))))
	mux.Handle("GET /api/v1/cameras", Protect(permsMiddleware.RequirePermission("cameras.list", "tenant")(http.HandlerFunc(camHandler.List))))
	mux.Handle("POST /api/v1/cameras/bulk", Protect(permsMiddleware.RequirePermission("cameras.manage", "tenant")(http.HandlerFunc(camHandler.Bulk))))
	mux.Handle("POST /api/v1/cameras/{id}/enable", Protect(permsMiddleware.RequirePermission("cameras.manage", "tenant")(http.HandlerFunc(camHandler.Enable))))
	mux.Handle("POST /api/v1/cameras/{id}/disable", Protect(permsMiddleware.RequirePermission("cameras.manage", "tenant")(http.HandlerFunc(camHandler.Disable))))

	mux.Handle("PUT /api/v1/cameras/{id}/credentials", Protect(http.HandlerFunc(credHandler.Update)))
	mux.Handle("GET /api/v1/cameras/{id}/credentials", Protect(http.HandlerFunc(credHandler.Get)))
	mux.Handle("DELETE /api/v1/cameras/{id}/credentials", Protect(http.HandlerFunc(credHandler.Delete)))

	mux.Handle("GET /api/v1/cameras/health", Protect(permsMiddleware.RequirePermission("camera.health.read", "tenant")(http.HandlerFunc(healthHandler.GetHealth))))
	mux.Handle("GET /api/v1/cameras/{id}/health", Protect(permsMiddleware.RequirePermission("camera.health.read", "tenant")(http.HandlerFunc(healthHandler.GetCameraHealth))))
	mux.Handle("GET /api/v1/cameras/{id}/health/history", Protect(permsMiddleware.RequirePermission("camera.health.read", "tenant")(http.HandlerFunc(healthHandler.GetHistory))))
	mux.Handle("GET /api/v1/alerts/cameras", Protect(permsMiddleware.RequirePermission("alerts.read", "tenant")(http.HandlerFunc(healthHandler.ListAlerts))))
	mux.Handle("POST /api/v1/cameras/{id}/health-recheck", Protect(permsMiddleware.RequirePermission("camera.health.recheck", "tenant")(http.HandlerFunc(healthHandler.ManualRecheck))))

	mux.Handle("GET /api/v1/audit/events", Protect(permsMiddleware.RequirePermission("audit.read", "tenant")(http.HandlerFunc(auditHandler.GetEvents))))
	mux.Handle("POST /api/v1/audit/exports", Protect(permsMiddleware.RequirePermission("audit.export", "tenant")(http.HandlerFunc(auditHandler.ExportEvents))))

	mux.Handle("GET /api/v1/license/status", Protect(permsMiddleware.RequirePermission("license.read", "tenant")(http.HandlerFunc(licenseHandler.GetStatus))))
	mux.Handle("POST /api/v1/license/reload", Protect(permsMiddleware.RequirePermission("license.manage", "tenant")(http.HandlerFunc(licenseHandler.Reload))))

	mux.Handle("GET /api/v1/users/{id}", Protect(permsMiddleware.RequirePermission("user.read", "tenant")(http.HandlerFunc(userHandler.GetUser))))
	mux.Handle("PUT /api/v1/users/{id}", Protect(permsMiddleware.RequirePermission("user.update", "tenant")(http.HandlerFunc(userHandler.UpdateUser))))
	mux.Handle("POST /api/v1/users", Protect(permsMiddleware.RequirePermission("user.create", "tenant")(http.HandlerFunc(userHandler.CreateUser))))
	mux.Handle("POST /api/v1/users/{id}/disable", Protect(permsMiddleware.RequirePermission("user.disable", "tenant")(http.HandlerFunc(userHandler.DisableUser))))
	mux.Handle("POST /api/v1/users/{id}/enable", Protect(permsMiddleware.RequirePermission("user.disable", "tenant")(http.HandlerFunc(userHandler.EnableUser))))
	mux.Handle("POST /api/v1/users/{id}/reset-password", Protect(permsMiddleware.RequirePermission("user.password.reset", "tenant")(http.HandlerFunc(userHandler.ResetPassword))))

	// Real-time monitor WebSocket: subscribing starts the camera's
	// pipeline, unsubscribing tears it down. Auth is a query-string token rather than the JWT
	// middleware chain since browsers cannot set WS request headers.
	mux.HandleFunc("/ws/monitor/{camera_id}", monitorHandler.ServeWS)

	mux.Handle("POST /api/v1/alerts/{id}/ack", Protect(permsMiddleware.RequirePermission("alerts.ack", "tenant")(http.HandlerFunc(alertHandler.Acknowledge))))
	mux.Handle("GET /api/v1/cameras/{camera_id}/workers/{worker_id}/history", Protect(permsMiddleware.RequirePermission("alerts.read", "tenant")(http.HandlerFunc(workerHistoryHandler.List))))
	mux.Handle("GET /api/v1/streams/", Protect(permsMiddleware.RequirePermission("camera.health.read", "tenant")(http.StripPrefix("/api/v1/streams", streamHandler.Router()))))

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /api/v1/debug/me", Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, _ := middleware.GetAuthContext(r.Context())
		fmt.Fprintf(w, "Hello Tenant:%s User:%s", ac.TenantID, ac.UserID)
	})))

	auditWrappedMux := auditMiddleware.LogRequest(mux)
	finalHandler := middleware.RequestLogger(middleware.CORS(rlMiddleware.GlobalLimiter(auditWrappedMux)))

	log.Printf("Starting server on :%s", cfg.Server.Port)
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: finalHandler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			elog.Error(eventIDError, fmt.Sprintf("HTTP server error: %v", err))
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	if isService {
		<-stopChan
		elog.Info(eventIDStop, "Service stop requested")
	} else {
		select {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	healthScheduler.Stop()

	if err := server.Shutdown(ctx); err != nil {
		elog.Error(eventIDError, fmt.Sprintf("Graceful shutdown error: %v", err))
	}
	elog.Info(eventIDStop, "Server stopped gracefully")
}

// buildDetector selects the configured detector backend: a
// remote gRPC inference service, an in-process ONNX Runtime session, or
// a no-op local backend for development environments with neither. The
// onnx case assumes the standard (1,3,S,S)-in / (1,N,6)-out export
// layout; a model with a different head needs a hand-built
// onnx.Options.
func buildDetector(cfg config.Config) (detect.Model, error) {
	detCfg := cfg.DetectConfig()
	switch cfg.Detector.Backend {
	case "remote":
		return remote.New(cfg.Detector.RemoteAddr, detCfg)
	case "onnx":
		sess, err := onnx.New(onnx.DefaultOptions(cfg.Detector.ModelPath, detCfg.InputSize, detCfg.MaxDetections))
		if err != nil {
			return nil, err
		}
		m := detect.NewLocal(sess.Backend(), detCfg)
		m.OnClose(sess.Close)
		return m, nil
	default:
		return detect.NewLocal(noopBackend, detCfg), nil
	}
}

// startDetectorHealthPoller polls the remote detector's Health RPC so
// ppe_detector_up reflects the external process's own readiness, not just
// whether the gRPC connection dialed successfully at startup.
func startDetectorHealthPoller(c *remote.Client) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			ok, _, err := c.Healthy(ctx)
			cancel()
			metrics.SetDetectorUp(err == nil && ok)
		}
	}()
}

// noopBackend is the local development fallback: it yields no
// detections for every frame, matching the facade's per-frame failure
// semantics rather than fabricating boxes when no model is wired.
func noopBackend(ctx context.Context, frame []byte, cfg detect.Config) ([]compliance.Detection, error) {
	return nil, nil
}

func buildSnapshotWriter(cfg config.Config) (snapshot.Writer, error) {
	if cfg.Snapshot.Backend == "minio" {
		return snapshot.NewObject(cfg.Snapshot.Endpoint, cfg.Snapshot.AccessKey, cfg.Snapshot.SecretKey, cfg.Snapshot.Bucket, cfg.Snapshot.PublicBaseURL, cfg.Snapshot.UseSSL)
	}
	return snapshot.NewLocal(cfg.Snapshot.BaseDir, cfg.Snapshot.PublicBaseURL), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
