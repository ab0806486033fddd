package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/database"
	"github.com/PhilHem/secureone/backend/files"
	"github.com/PhilHem/secureone/backend/handlers"
	"github.com/PhilHem/secureone/backend/logger"
	"github.com/PhilHem/secureone/backend/mailer"
	"github.com/PhilHem/secureone/backend/middleware"
	"github.com/PhilHem/secureone/backend/objectstore"
	"github.com/PhilHem/secureone/backend/otp"
	"github.com/PhilHem/secureone/backend/pgstore"
	"github.com/PhilHem/secureone/backend/registration"

	"gorm.io/gorm"
)

// uploadOverhead is allowed on top of the upload limit for multipart framing
// and the other form fields.
const uploadOverhead = 1 << 20

func main() {
	if err := config.Load(); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := handlers.InitSession(); err != nil {
		log.Fatal("Failed to init session:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users registration.CredentialStore
		meta  files.MetadataStore
		logDB *gorm.DB
		pgDB  *sql.DB
	)
	if config.C.Database.Driver == "postgres" {
		db, err := pgstore.Open(ctx, config.C.Database.DSN)
		if err != nil {
			log.Fatal("Failed to init database:", err)
		}
		pgDB = db
		users = pgstore.NewUserRepository(db)
		meta = pgstore.NewFileRepository(db)
	} else {
		if err := database.Init(config.C.Database.Driver, config.C.Database.DSN); err != nil {
			log.Fatal("Failed to init database:", err)
		}
		users = database.NewUserStore(database.DB)
		meta = database.NewFileStore(database.DB)
		if config.C.Logs.Persist {
			logDB = database.DB
		}
	}

	// Initialize structured logging
	slog.SetDefault(slog.New(logger.NewDBHandler(logDB, os.Stdout, logger.ParseLevel(config.C.Logs.Level))))
	if logDB != nil {
		go logger.CleanupOldLogs(ctx, logDB, config.C.Logs.Retention)
	}

	sender, err := mailer.New(config.C.Mail, logger.ForSource("mail"))
	if err != nil {
		log.Fatal("Failed to init mailer:", err)
	}
	issuer := otp.NewIssuer(sender, config.C.OTP, logger.ForSource("otp"))
	handlers.Registration = registration.NewService(users, issuer, config.C.OTP, config.C.Auth, logger.ForSource("auth"))

	blobs, err := objectstore.New(ctx, config.C.Storage, logger.ForSource("storage"))
	if err != nil {
		log.Fatal("Failed to init object storage:", err)
	}
	handlers.Files = files.NewService(meta, blobs, config.C.Upload.MaxSize, logger.ForSource("files"))

	slog.Info("server starting", "source", "main",
		"listen", config.C.Listen,
		"public_url", config.C.PublicURL,
		"database", config.C.Database.Driver,
		"storage", config.C.Storage.Backend,
		"sessions", config.C.Session.Backend,
		"mail", config.C.Mail.Backend,
	)

	mux := newMux()

	csrf := middleware.NewCSRFProtection(config.C.Session.Secret, config.C.TLS.Enabled)
	handler := middleware.SecurityHeaders(
		middleware.RequestLogger(
			middleware.LimitBody(config.C.Upload.MaxSize + uploadOverhead)(
				csrf.Protect(mux))))

	srv := &http.Server{
		Addr:              config.C.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Printf("Server running at %s (public: %s)\n", config.C.Listen, config.C.PublicURL)
		var err error
		if config.C.TLS.Enabled {
			slog.Info("starting server with TLS", "source", "main")
			err = srv.ListenAndServeTLS(config.C.TLS.Cert, config.C.TLS.Key)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down", "source", "main")

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "source", "main", "error", err.Error())
	}
	if pgDB != nil {
		pgDB.Close()
	}
}

// newMux registers every route. State-changing routes accept POST only so
// the CSRF check covers them.
func newMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check (unauthenticated, for load balancers)
	mux.HandleFunc("GET /health", handlers.Health)

	// Public pages
	mux.HandleFunc("GET /{$}", handlers.HomePage)
	mux.HandleFunc("GET /register", handlers.RegisterPage)
	mux.HandleFunc("POST /register", handlers.Register)
	mux.HandleFunc("GET /verify", handlers.VerifyPage)
	mux.HandleFunc("POST /verify", handlers.Verify)
	mux.HandleFunc("POST /verify/resend", handlers.ResendOTP)
	mux.HandleFunc("GET /login", handlers.LoginPage)
	mux.HandleFunc("POST /login", handlers.Login)
	mux.HandleFunc("POST /logout", handlers.Logout)

	// Account pages (require a verified login)
	mux.HandleFunc("GET /dashboard", middleware.RequireAuth(handlers.Dashboard))
	mux.HandleFunc("GET /profile", middleware.RequireAuth(handlers.ProfilePage))
	mux.HandleFunc("POST /files", middleware.RequireAuth(handlers.Upload))
	mux.HandleFunc("GET /files/{id}/download", middleware.RequireAuth(handlers.Download))
	mux.HandleFunc("POST /files/{id}/delete", middleware.RequireAuth(handlers.DeleteFile))
	mux.HandleFunc("GET /api/files", middleware.RequireAPIAuth(handlers.GetFiles))
	return mux
}
