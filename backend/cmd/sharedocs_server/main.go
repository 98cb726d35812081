package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/apshuang/ShareDocs/backend/config"
	"github.com/apshuang/ShareDocs/backend/internal/auth"
	"github.com/apshuang/ShareDocs/backend/internal/cache"
	"github.com/apshuang/ShareDocs/backend/internal/collab"
	"github.com/apshuang/ShareDocs/backend/internal/httpapi/handlers"
	"github.com/apshuang/ShareDocs/backend/internal/httpapi/middleware"
	"github.com/apshuang/ShareDocs/backend/internal/permission"
	"github.com/apshuang/ShareDocs/backend/internal/store"
	"github.com/apshuang/ShareDocs/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config loaded, port=%d", cfg.Running.Port)

	if cfg.Jwt.Secret != "" {
		auth.SetSecret(cfg.Jwt.Secret)
	}

	// === MySQL ===
	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("Failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// === Redis ===
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// === Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	// Kafka 本地队列 + worker 重试发送
	kafkaSem := collab.NewSemaphoreControl()
	dispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	// === 存储层 ===
	contentStore := store.NewFileContentStore(cfg.Documents.Dir)
	syncStore := store.NewMySQLSyncStore(sqlDB)
	documentStore := store.NewDocumentStore(gormDB)
	shareStore := store.NewShareStore(gormDB)
	oplogStore := store.NewOperationLogStore(gormDB)
	userStore := store.NewUserStore(sqlDB)

	perms := permission.NewResolver(documentStore, shareStore)
	presenceCache := cache.NewRedisPresence(rdb)

	// === 同步引擎与实时层 ===
	registry := ws.NewRegistry()
	svc := collab.NewSyncService(syncStore, contentStore, registry, dispatcher)
	manager := ws.NewManager(registry, svc, perms, presenceCache)

	submitSem := collab.NewSemaphoreControl()
	docHandler := handlers.NewDocumentHandler(
		documentStore, shareStore, userStore, oplogStore, contentStore,
		perms, svc, submitSem, presenceCache,
	)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 认证
	v1 := r.Group("/v1/auth")
	v1.POST("/register", func(c *gin.Context) { auth.Register(c, userStore) })
	v1.POST("/login", func(c *gin.Context) { auth.Login(c, userStore) })
	v1.POST("/refresh", auth.Refresh)
	v1.GET("/verify", middleware.AuthMiddleware(), auth.Verify)

	// 文档 REST API
	api := r.Group("/api/documents")
	api.Use(middleware.AuthMiddleware())
	api.POST("", docHandler.CreateDocument)
	api.GET("", docHandler.ListDocuments)
	api.GET("/:documentID", docHandler.GetDocument)
	api.PATCH("/:documentID", docHandler.UpdateDocument)
	api.DELETE("/:documentID", docHandler.DeleteDocument)
	api.GET("/:documentID/editors", docHandler.GetDocumentEditors)
	api.GET("/:documentID/presence", docHandler.GetActiveMembers)
	api.GET("/:documentID/operations", docHandler.ListOperations)
	api.POST("/:documentID/operations", docHandler.ApplyOperation)
	api.POST("/:documentID/shares", docHandler.ShareDocument)
	api.GET("/:documentID/shares", docHandler.ListShares)
	api.DELETE("/:documentID/shares/:shareID", docHandler.Unshare)

	// 实时协作 WebSocket
	wsGroup := r.Group("/ws")
	wsGroup.Use(middleware.AuthMiddleware())
	wsGroup.GET("", manager.WebSocketConnect)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	_ = r.Run(fmt.Sprintf(":%d", cfg.Running.Port))
}
