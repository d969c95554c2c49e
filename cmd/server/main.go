package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scanstudents/internal/attendance"
	"scanstudents/internal/camera"
	"scanstudents/internal/command"
	"scanstudents/internal/config"
	"scanstudents/internal/engine"
	"scanstudents/internal/export"
	"scanstudents/internal/faceclient"
	"scanstudents/internal/httpmiddleware"
	"scanstudents/internal/interpreter"
	"scanstudents/internal/model"
	"scanstudents/internal/queue"
	"scanstudents/internal/recording"
	"scanstudents/internal/speech"
	"scanstudents/internal/store"
)

// Speech capture feedback, matching the assistant locale.
const (
	msgNoSpeech     = "Je n'ai rien entendu. Veuillez réessayer."
	msgMicDenied    = "Accès au micro refusé. Veuillez autoriser les permissions."
	msgSpeechFailed = "Désolé, la reconnaissance vocale a échoué."
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	repo := store.NewRepository(db.Client)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Printf("warning: schema setup failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "scanstudents:attendance")
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceThreshold, cfg.FaceSkip)
	interp := interpreter.New(cfg.InterpreterURL, cfg.InterpreterSkip)
	stt := speech.New(cfg.SpeechServiceURL, cfg.SpeechLang)

	registry := attendance.NewRegistry(repo)
	if err := registry.Rebuild(context.Background(), time.Now()); err != nil {
		log.Printf("warning: recognized-today rebuild failed: %v", err)
	}
	registry.OnRecord(func(rec model.AttendanceRecord) {
		msg := queue.Message{Type: "attendance", Body: []byte(rec.ID)}
		if err := q.Publish(context.Background(), msg); err != nil {
			log.Printf("queue publish for %s failed: %v", rec.ID, err)
		}
	})

	cam := camera.NewManager(camera.NewHTTPDevice(cfg.CameraURL))
	recorder := recording.NewSession(repo)
	eng := engine.New(repo, face, registry, cam, recorder, cfg.ScanInterval)
	defer eng.Shutdown()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		dbHealthy := db.Client.PingContext(ctx) == nil
		redisHealthy := redisClient.Healthy(ctx)
		faceHealthy := face.Health(ctx) == nil
		status := http.StatusOK
		if !dbHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status": "ok",
			"db":     dbHealthy,
			"redis":  redisHealthy,
			"face":   faceHealthy,
		})
	})

	// Voice command pipeline: text in, state out.
	r.POST("/v1/commands", func(c *gin.Context) {
		var req struct {
			Utterance string `json:"utterance" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cmd := interp.Interpret(c.Request.Context(), req.Utterance)
		st, feedback := eng.Execute(c.Request.Context(), cmd)
		c.JSON(http.StatusOK, gin.H{"command": cmd, "state": st, "feedback": feedback})
	})

	// Same pipeline with raw audio in front of it.
	r.POST("/v1/commands/audio", func(c *gin.Context) {
		audio, err := io.ReadAll(io.LimitReader(c.Request.Body, 10<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read audio failed"})
			return
		}
		transcript, err := stt.Transcribe(c.Request.Context(), audio, c.ContentType())
		if err != nil {
			switch {
			case errors.Is(err, speech.ErrNoSpeech):
				c.JSON(http.StatusOK, gin.H{"feedback": msgNoSpeech, "state": eng.State()})
			case errors.Is(err, speech.ErrPermissionDenied):
				c.JSON(http.StatusOK, gin.H{"feedback": msgMicDenied, "state": eng.State()})
			default:
				log.Printf("transcription failed: %v", err)
				c.JSON(http.StatusOK, gin.H{"feedback": msgSpeechFailed, "state": eng.State()})
			}
			return
		}
		cmd := interp.Interpret(c.Request.Context(), transcript)
		st, feedback := eng.Execute(c.Request.Context(), cmd)
		c.JSON(http.StatusOK, gin.H{"transcript": transcript, "command": cmd, "state": st, "feedback": feedback})
	})

	r.GET("/v1/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":            eng.State(),
			"camera_active":    eng.CameraActive(),
			"recording_active": eng.RecordingActive(),
			"model_ready":      eng.ModelReady(),
			"recognized_today": registry.Count(),
			"overlay":          eng.Overlay(),
		})
	})

	// Direct controls go through the same dispatcher as voice commands, so
	// page guards apply to them too.
	r.POST("/v1/navigate", func(c *gin.Context) {
		var req struct {
			Page string `json:"page" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st, feedback := eng.Execute(c.Request.Context(), command.Command{
			Action:  command.ActionNavigate,
			Payload: &command.Payload{Page: command.Page(req.Page)},
		})
		c.JSON(http.StatusOK, gin.H{"state": st, "feedback": feedback})
	})

	r.POST("/v1/camera", opEndpoint(eng, command.ActionCamera))
	r.POST("/v1/record", opEndpoint(eng, command.ActionRecord))

	// Students CRUD. Photo-affecting writes invalidate the face model.
	r.POST("/v1/students", func(c *gin.Context) {
		var s model.Student
		if err := c.ShouldBindJSON(&s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !s.Level.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level"})
			return
		}
		if err := repo.AddStudent(c.Request.Context(), s); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				c.JSON(http.StatusConflict, gin.H{"error": "matricule already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if s.Photo != "" {
			eng.InvalidateModel(c.Request.Context())
		}
		c.JSON(http.StatusCreated, s)
	})

	r.GET("/v1/students", func(c *gin.Context) {
		level := model.Level(c.DefaultQuery("level", string(model.LevelAll)))
		students, err := repo.ListStudents(c.Request.Context(), c.Query("search"), level)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	r.GET("/v1/students/:id", func(c *gin.Context) {
		s, err := repo.GetStudent(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if s == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusOK, s)
	})

	r.PUT("/v1/students/:id", func(c *gin.Context) {
		var s model.Student
		if err := c.ShouldBindJSON(&s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.ID = c.Param("id")
		if !s.Level.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level"})
			return
		}
		if err := repo.UpdateStudent(c.Request.Context(), s); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		eng.InvalidateModel(c.Request.Context())
		c.JSON(http.StatusOK, s)
	})

	r.DELETE("/v1/students/:id", func(c *gin.Context) {
		if err := repo.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		eng.InvalidateModel(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	r.GET("/v1/attendance", func(c *gin.Context) {
		ctx := c.Request.Context()
		if day := c.Query("day"); day != "" {
			records, err := repo.ListAttendanceByDay(ctx, day)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"records": records})
			return
		}
		limit := intQuery(c, "limit", 50)
		offset := intQuery(c, "offset", 0)
		records, err := repo.ListAttendance(ctx, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	r.GET("/v1/attendance/export", func(c *gin.Context) {
		ctx := c.Request.Context()
		records, err := repo.ListAttendance(ctx, 1000, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		students, err := repo.ListStudents(ctx, "", model.LevelAll)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if c.Query("format") == "csv" {
			sheet := export.AttendanceSheet(records, students, export.FormatCSV)
			c.Header("Content-Disposition", `attachment; filename="presence.csv"`)
			c.Data(http.StatusOK, "text/csv; charset=utf-8", sheet)
			return
		}
		sheet := export.AttendanceSheet(records, students, export.FormatText)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", sheet)
	})

	r.GET("/v1/recordings", func(c *gin.Context) {
		recs, err := repo.ListRecordings(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"recordings": recs})
	})

	r.GET("/v1/recordings/:id/video", func(c *gin.Context) {
		rec, err := repo.GetRecording(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+rec.ID+`.webm"`)
		c.Data(http.StatusOK, "video/webm", rec.Video)
	})

	r.DELETE("/v1/recordings/:id", func(c *gin.Context) {
		if err := repo.DeleteRecording(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// opEndpoint builds a handler accepting {"operation": "start"|"stop"} and
// routing it through the command dispatcher.
func opEndpoint(eng *engine.Engine, action command.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Operation string `json:"operation" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		op := command.Op(req.Operation)
		if op != command.OpStart && op != command.OpStop {
			c.JSON(http.StatusBadRequest, gin.H{"error": "operation must be start or stop"})
			return
		}
		st, feedback := eng.Execute(c.Request.Context(), command.Command{
			Action:  action,
			Payload: &command.Payload{Operation: op},
		})
		c.JSON(http.StatusOK, gin.H{"state": st, "feedback": feedback})
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
