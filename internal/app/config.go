package app

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	HTTPAddr          string
	DBDSN             string
	DBAutoMigrate     bool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int
	CSRFEnforced      bool

	ContentAPIURL     string
	ContentAPIToken   string
	ContentAPITimeout time.Duration

	GroupedQuestionTypeID   int64
	DefaultClassificationID int64
	AdminUserID             int64
	RollbackExistingParent  bool
	SaveRateLimitPerMin     int
	SessionIdle             time.Duration

	CloudinaryURL    string
	CloudinaryFolder string
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: ignoring .env: %v", err)
	}

	return Config{
		AppEnv:                  envOrDefault("APP_ENV", "development"),
		HTTPAddr:                envOrDefault("HTTP_ADDR", ":8080"),
		DBDSN:                   strings.TrimSpace(os.Getenv("DB_DSN")),
		DBAutoMigrate:           boolOrDefault("DB_AUTO_MIGRATE", true),
		DBMaxOpenConns:          intOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:          intOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifeMins:       intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		CSRFEnforced:            boolOrDefault("CSRF_ENFORCED", false),
		ContentAPIURL:           strings.TrimRight(envOrDefault("CONTENT_API_URL", "http://localhost:3000/api"), "/"),
		ContentAPIToken:         os.Getenv("CONTENT_API_TOKEN"),
		ContentAPITimeout:       time.Duration(intOrDefault("CONTENT_API_TIMEOUT_SECONDS", 20)) * time.Second,
		GroupedQuestionTypeID:   int64(intOrDefault("GROUPED_QUESTION_TYPE_ID", 2)),
		DefaultClassificationID: int64(intOrDefault("DEFAULT_CLASSIFICATION_ID", 0)),
		AdminUserID:             int64(intOrDefault("ADMIN_USER_ID", 0)),
		RollbackExistingParent:  boolOrDefault("ROLLBACK_EXISTING_PARENT", false),
		SaveRateLimitPerMin:     intOrDefault("SAVE_RATE_LIMIT_PER_MINUTE", 30),
		SessionIdle:             time.Duration(intOrDefault("SESSION_IDLE_MINUTES", 120)) * time.Minute,
		CloudinaryURL:           strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		CloudinaryFolder:        envOrDefault("CLOUDINARY_FOLDER", "banco_preguntas"),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
