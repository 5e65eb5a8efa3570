package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"lms-system/internal/assistant"
	"lms-system/internal/attempt"
	"lms-system/internal/auth"
	"lms-system/internal/course"
	"lms-system/internal/genai"
	"lms-system/internal/models"
	"lms-system/pkg/cache"
	"lms-system/pkg/database"
	"lms-system/pkg/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	rand.Seed(time.Now().UnixNano())

	dbConfig := &database.Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}

	db, err := database.NewPostgresDB(dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Enrollment{},
		&models.Quiz{},
		&models.QuizQuestion{},
		&models.QuizAttempt{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisCache := cache.NewRedisCache(os.Getenv("REDIS_ADDR"))

	jwtSecret := os.Getenv("JWT_SECRET")

	wsHub := websocket.NewHub(jwtSecret)
	go wsHub.Run()

	// Repositories
	authRepo := auth.NewRepository(db)
	courseRepo := course.NewRepository(db)
	attemptRepo := attempt.NewRepository(db)

	// Services
	authService := auth.NewService(authRepo, jwtSecret)
	courseService := course.NewService(courseRepo)
	quizEngine := attempt.NewEngine(attemptRepo)

	dailyLimit, _ := strconv.ParseInt(os.Getenv("ASSISTANT_DAILY_LIMIT"), 10, 64)
	generator := genai.NewClient(os.Getenv("GEMINI_API_KEY"))
	pipeline := assistant.NewPipeline(generator, courseRepo, redisCache, wsHub, dailyLimit)

	// Handlers
	authHandler := auth.NewHandler(authService)
	courseHandler := course.NewHandler(courseService)
	attemptHandler := attempt.NewHandler(quizEngine)
	assistantHandler := assistant.NewHandler(pipeline)

	router := mux.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	handler := corsMiddleware.Handler(router)

	// Auth routes - no JWT required
	router.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// Everything else requires a token
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(auth.JWTMiddleware(jwtSecret))

	// Courses. Mutations are reserved for teachers.
	teacherOnly := auth.RequireRole(models.RoleTeacher)
	apiRouter.HandleFunc("/courses/my", courseHandler.ListMyCourses).Methods("GET")
	apiRouter.Handle("/courses", teacherOnly(http.HandlerFunc(courseHandler.CreateCourse))).Methods("POST", "OPTIONS")
	apiRouter.Handle("/courses/{courseID}", teacherOnly(http.HandlerFunc(courseHandler.UpdateCourse))).Methods("PUT", "OPTIONS")
	apiRouter.Handle("/courses/{courseID}", teacherOnly(http.HandlerFunc(courseHandler.DeleteCourse))).Methods("DELETE", "OPTIONS")
	apiRouter.HandleFunc("/courses/{courseID}/enroll", courseHandler.Enroll).Methods("POST", "OPTIONS")

	// Quiz sessions
	apiRouter.HandleFunc("/quiz/{quizID}/session", attemptHandler.LoadSession).Methods("GET")
	apiRouter.HandleFunc("/quiz/{quizID}/attempt", attemptHandler.StartAttempt).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/quiz/{quizID}/answer", attemptHandler.RecordAnswer).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/quiz/{quizID}/navigate", attemptHandler.Navigate).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/quiz/{quizID}/submit", attemptHandler.Submit).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/quiz/{quizID}/result", attemptHandler.Result).Methods("GET")

	// Assistant chat
	apiRouter.HandleFunc("/assistant/message", assistantHandler.SendMessage).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/assistant/history", assistantHandler.History).Methods("GET")
	apiRouter.HandleFunc("/assistant/confirm", assistantHandler.Confirm).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/assistant/decline", assistantHandler.Decline).Methods("POST", "OPTIONS")

	// WebSocket endpoint for the chat panel
	router.HandleFunc("/ws/assistant", wsHub.HandleWebSocket)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server shutdown gracefully")
}
