package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/livequiz-api/internal/config"
	"github.com/yourusername/livequiz-api/internal/handler"
	"github.com/yourusername/livequiz-api/internal/middleware"
	pgRepo "github.com/yourusername/livequiz-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/livequiz-api/internal/repository/redis"
	"github.com/yourusername/livequiz-api/internal/service"
	"github.com/yourusername/livequiz-api/internal/session"
	ws "github.com/yourusername/livequiz-api/internal/websocket"
	"github.com/yourusername/livequiz-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	quizRepo := pgRepo.NewQuizRepo(db)
	reportRepo := pgRepo.NewReportRepo(db)
	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Конфигурация движка сессий
	sessionConfig := &session.Config{
		CountdownSeconds:   cfg.Session.CountdownSeconds,
		ShowLeaderboardSec: cfg.Session.ShowLeaderboardSec,
		LeaderboardEvery:   cfg.Session.LeaderboardEvery,
		MaxParticipants:    cfg.Session.MaxParticipants,
	}
	registry := session.NewRegistry(sessionConfig)

	// WebSocket-хаб: комнаты по кодам сессий
	wsHub := ws.NewHub()
	wsManager := ws.NewManager(wsHub)

	// Инициализируем сервисы
	quizService := service.NewQuizService(quizRepo)
	sessionService := service.NewSessionService(
		registry,
		quizRepo,
		reportRepo,
		cacheRepo,
		wsHub,
		time.Duration(cfg.Session.SweepIntervalSec)*time.Second,
	)

	// Инициализируем обработчики
	quizHandler := handler.NewQuizHandler(quizService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	wsHandler := handler.NewWSHandler(wsHub, wsManager, sessionService)

	// Хаб запускается после установки обработчика отключений
	go wsHub.Run()

	// Настраиваем маршрутизатор
	router := gin.Default()

	if err := router.SetTrustedProxies(nil); err != nil {
		log.Printf("Failed to set trusted proxies: %v", err)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8000", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health-check
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := database.GetSQLDB(db)
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"active_sessions": registry.ActiveCount(),
		})
	})

	api := router.Group("/api")
	{
		quizzes := api.Group("/quizzes")
		{
			quizzes.POST("", quizHandler.CreateQuiz)
			quizzes.GET("", quizHandler.ListQuizzes)

			quizByID := quizzes.Group("/:id")
			quizByID.Use(middleware.ExtractUintParam("id", "quizID"))
			{
				quizByID.GET("", quizHandler.GetQuiz)
				quizByID.DELETE("", quizHandler.DeleteQuiz)
			}
		}

		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("", sessionHandler.ListSessions)

			sessionByCode := sessions.Group("/:code")
			sessionByCode.Use(middleware.ExtractSessionCode("code", "sessionCode"))
			{
				sessionByCode.GET("", sessionHandler.GetSession)
				sessionByCode.GET("/participants", sessionHandler.GetParticipants)
				sessionByCode.GET("/leaderboard", sessionHandler.GetLeaderboard)
				sessionByCode.POST("/join", sessionHandler.JoinSession)
				sessionByCode.POST("/leave", sessionHandler.LeaveSession)
				sessionByCode.POST("/start", sessionHandler.StartSession)
				sessionByCode.POST("/next", sessionHandler.NextQuestion)
				sessionByCode.POST("/pause", sessionHandler.PauseSession)
				sessionByCode.POST("/resume", sessionHandler.ResumeSession)
				sessionByCode.POST("/answer", sessionHandler.SubmitAnswer)
				sessionByCode.POST("/end", sessionHandler.EndSession)
			}
		}

		reports := api.Group("/reports/:code")
		reports.Use(middleware.ExtractSessionCode("code", "sessionCode"))
		{
			reports.GET("", sessionHandler.GetReport)
			reports.GET("/export", sessionHandler.ExportReport)
		}
	}

	// WebSocket маршрут
	router.GET("/ws/:code", middleware.ExtractSessionCode("code", "sessionCode"), wsHandler.HandleConnection)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Завершаем активные сессии и архивируем отчеты
	sessionService.Shutdown()

	// Останавливаем WebSocket-хаб
	wsHub.Shutdown()

	// Graceful shutdown HTTP сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
