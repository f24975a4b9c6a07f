package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"noteshub/config"
	"noteshub/internal/api"
	"noteshub/internal/broker"
	"noteshub/internal/drive"
	"noteshub/internal/gateway"
	"noteshub/internal/redisclient"
	"noteshub/internal/service"
	"noteshub/internal/store"
	"noteshub/internal/util"
	"noteshub/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting noteshub service")

	tp, err := util.InitTracer("noteshub", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	driveClient, err := drive.NewClient(context.Background(), cfg.Drive.ClientEmail, cfg.Drive.PrivateKey)
	if err != nil {
		log.Fatalf("Failed to create Drive client: %v", err)
	}
	log.Println("Drive client initialized")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchase)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	accessManager := drive.NewAccessManager(driveClient, redisClient, cfg.Business.GrantNotifyMessage)
	razorpayClient := gateway.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	verifier := gateway.NewVerifier(cfg.Razorpay.KeySecret)

	catalogService := service.NewCatalogService(db, redisClient,
		time.Duration(cfg.Business.CatalogCacheSeconds)*time.Second)
	purchaseService := service.NewPurchaseService(db, db, razorpayClient, verifier,
		accessManager, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	accessConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchase, cfg.Kafka.ConsumerGroup)
	accessWorker := worker.NewAccessWorker(accessConsumer, accessManager, eventPublisher,
		cfg.Business.GrantMaxAttempts,
		time.Duration(cfg.Business.GrantRetryDelaySeconds)*time.Second)
	go func() {
		if err := accessWorker.Start(workerCtx); err != nil {
			log.Printf("Access worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(catalogService, purchaseService, accessManager)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	accessWorker.Stop()

	log.Println("Server exited")
}
