package main

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"dm-service/internal/auth"
	"dm-service/internal/db"
	"dm-service/internal/directory"
	"dm-service/internal/handlers"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/registry"
	"dm-service/internal/repositories"
	"dm-service/internal/router"
	"dm-service/internal/telemetry"
	"dm-service/internal/tracing"
	"dm-service/internal/ws"
)

const serviceName = "dm-service"

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	database, err := db.Connect()
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to db")
	}

	environment := getEnv("ENVIRONMENT", "dev")
	amqpURL := getEnv("AMQP_URL", "")

	publisher := rabbitmq.NewPublisher(amqpURL, "dm_audit")
	defer publisher.Close()
	logrus.WithField("mode", rabbitmq.PublisherMode(publisher)).Info("audit publisher ready")
	emitter := telemetry.NewAuditEmitter(publisher, "audit.dm", serviceName, environment)

	if eventPublisher, err := observability.NewAMQPPublisher(amqpURL, "ws_events"); err == nil {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	shutdownTracing, err := tracing.Init(context.Background(), serviceName, getEnv("OTLP_ADDR", ""))
	if err != nil {
		logrus.WithError(err).Fatal("failed to init tracing")
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	messageRepo := repositories.NewMessageRepo(database)
	dir := directory.New(messageRepo, directory.NewSQLUserDirectory(database))
	reg := registry.New()
	verifier := auth.NewHS256Verifier(getEnv("AUTH_SECRET", "dev-secret"))

	messageRouter := router.New(messageRepo, reg, emitter)
	wsHandler := ws.NewHandler(reg, verifier, messageRouter)
	dmHandler := handlers.NewDMHandler(dir, messageRepo, messageRouter)

	engine := gin.Default()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	engine.GET("/conversations", authMiddleware, dmHandler.ListConversations)
	engine.GET("/conversations/:other_id/messages", authMiddleware, dmHandler.GetHistory)
	engine.POST("/conversations/:other_id/read", authMiddleware, dmHandler.MarkRead)
	engine.POST("/messages", authMiddleware, dmHandler.CreateMessage)

	engine.GET("/ws", wsHandler.Handle)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(engine, emitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	if err := engine.Run(":" + port); err != nil {
		logrus.WithError(err).Fatal("server error")
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
