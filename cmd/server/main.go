package main

import (
	"os"
	"time"

	"variance-analysis-backend/internal/config"
	"variance-analysis-backend/internal/logger"
	"variance-analysis-backend/internal/middleware"
	"variance-analysis-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	// Load .env
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New("info")
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(cfg.LogLevel)
	if envErr != nil {
		log.Debug().Msg("No .env file found, relying on system env")
	}

	var db *gorm.DB
	if cfg.StorageDriver == config.StoragePostgres {
		db, err = config.InitDB(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("database unavailable")
		}
		if err := config.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
	} else {
		log.Warn().Msg("using in-memory storage, analyses are lost on restart")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log))
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, cfg, db, log)

	log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageDriver).Msg("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
