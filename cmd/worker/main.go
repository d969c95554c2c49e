package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scanstudents/internal/cloudinary"
	"scanstudents/internal/config"
	"scanstudents/internal/queue"
	"scanstudents/internal/store"
)

// Worker consumes attendance messages and offloads the inline detection
// snapshot to hosted image storage, so the database only keeps a URL.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	repo := store.NewRepository(db.Client)

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "scanstudents:attendance")
	}

	var cdn *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdn = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Fatal("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "attendance" {
			continue
		}

		id := string(msg.Body)
		rec, err := repo.GetAttendance(ctx, id)
		if err != nil {
			log.Printf("fetch record %s failed: %v", id, err)
			continue
		}
		if rec == nil {
			log.Printf("record %s gone, skipping", id)
			continue
		}
		// already offloaded (redelivery) or never had a snapshot
		if rec.Photo == "" || !strings.HasPrefix(rec.Photo, "data:") {
			continue
		}

		result, err := cdn.UploadDataURL(rec.Photo)
		if err != nil {
			log.Printf("snapshot upload for %s failed: %v", id, err)
			continue
		}
		if err := repo.UpdateAttendancePhoto(ctx, id, result.SecureURL); err != nil {
			log.Printf("photo rewrite for %s failed: %v", id, err)
			continue
		}
		log.Printf("record %s snapshot offloaded to %s", id, result.PublicID)
	}

	log.Println("worker stopped")
}
