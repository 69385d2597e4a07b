package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sail-lab/intact-server/internal/api"
	"github.com/sail-lab/intact-server/internal/config"
	"github.com/sail-lab/intact-server/internal/db"
	"github.com/sail-lab/intact-server/internal/middleware"
	"github.com/sail-lab/intact-server/internal/services"
)

func main() {
	cfg := config.Load()

	store, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer cleanup()

	studySvc := services.NewStudyService(store, cfg.StudyURLPrefix)
	testSvc := services.NewTestService(store)
	exportSvc := services.NewExportService(store, testSvc)
	gate := services.NewAdminGate(cfg.AdminPassword, cfg.AdminPasswordBcrypt)

	mux := http.NewServeMux()
	api.NewRouter(studySvc, testSvc, exportSvc, gate).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"name": "INTACT API",
			"db":   cfg.DBDriver,
		})
	})

	handler := middleware.NoStore(middleware.CORS(cfg.CORSOrigins(), mux))

	log.Printf("INTACT server listening on %s (store: %s)", cfg.Addr, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(cfg *config.Config) (api.Store, func(), error) {
	switch cfg.DBDriver {
	case "memory":
		return api.NewMemoryStore(), func() {}, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(cfg.SQLitePath))
		sqliteDB, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		store, err := db.NewSQLiteStore(sqliteDB)
		if err != nil {
			_ = sqliteDB.Close()
			return nil, nil, err
		}
		cleanup := func() {
			if cerr := sqliteDB.Close(); cerr != nil {
				log.Printf("warning: failed to close sqlite db: %v", cerr)
			}
		}
		return store, cleanup, nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		store, err := db.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if cerr := store.Close(ctx); cerr != nil {
				log.Printf("warning: failed to disconnect mongo: %v", cerr)
			}
		}
		return store, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown INTACT_DB driver %q", cfg.DBDriver)
	}
}
