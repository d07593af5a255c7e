package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"qbadmin/internal/app"
	"qbadmin/internal/db"
	"qbadmin/migrations"
)

func main() {
	cfg := app.LoadConfig()
	ctx := context.Background()

	var dbConn *sql.DB
	if cfg.DBDSN != "" {
		conn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, db.PostgresConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
		})
		if err != nil {
			log.Printf("database error: %v", err)
			os.Exit(1)
		}
		defer conn.Close()
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, conn, migrations.FS); err != nil {
				log.Printf("migration error: %v", err)
				os.Exit(1)
			}
		}
		dbConn = conn
	} else {
		log.Printf("DB_DSN not set; save journal disabled")
	}

	r, err := app.NewRouter(ctx, cfg, dbConn)
	if err != nil {
		log.Printf("router error: %v", err)
		os.Exit(1)
	}

	log.Printf("qbadmin web listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
