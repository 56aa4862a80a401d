// Command server runs one Hokm game server instance: authentication,
// the room registry, and the WebSocket gateway clients connect to
// (directly, or through the edge proxy in front of a server pool).
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"hokm/internal/authsvc"
	"hokm/internal/breaker"
	"hokm/internal/coldstore"
	"hokm/internal/config"
	"hokm/internal/datalayer"
	"hokm/internal/hotstore"
	"hokm/internal/ratelimit"
	"hokm/internal/room"
	"hokm/internal/session"
	websocket "hokm/internal/wsgateway"
)

func main() {
	log.Println("starting hokm game server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cold, err := coldstore.NewDatabase(coldstore.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		DSN:      cfg.GetDatabaseDSN(),
	})
	if err != nil {
		log.Fatalf("connect cold store: %v", err)
	}
	defer cold.Close()
	if err := cold.Migrate(); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	hot := hotstore.New(hotstore.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Enabled:  cfg.Redis.Enabled,
	})

	var chatRedis *redis.Client
	if cfg.Redis.Enabled {
		chatRedis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		SlidingWindow:    cfg.Breaker.SlidingWindow,
		CacheTTL:         cfg.Breaker.CacheTTL,
		CacheSize:        cfg.Breaker.CacheSize,
	}

	dl := datalayer.New(hot, cold, breakerCfg, datalayer.Config{
		HighPriorityWorkers:   cfg.DataLayer.HighPriorityWorkers,
		MediumPriorityWorkers: cfg.DataLayer.MediumPriorityWorkers,
		LowPriorityWorkers:    cfg.DataLayer.LowPriorityWorkers,
		MaxRetries:            cfg.DataLayer.MaxRetries,
		QueueCapacity:         cfg.DataLayer.QueueCapacity,
		PeriodicFlushInterval: 5 * time.Second,
	})
	defer dl.Close()

	players := coldstore.NewPlayerRepository(cold.DB)
	credentials := coldstore.NewCredentialRepository(cold.DB)
	tokens := authsvc.NewTokenIssuer([]byte(cfg.JWT.Secret), cfg.JWT.Expiration)
	auth := authsvc.NewService(players, credentials, tokens)

	sessions := session.NewStore(cfg.Room.DisconnectGrace, cfg.JWT.Expiration)
	defer sessions.Close()

	chat := ratelimit.NewChatLimiter(chatRedis, 5, time.Minute)

	roomCfg := room.Config{
		TurnTimeout:      cfg.Room.TurnTimeout,
		DisconnectGrace:  cfg.Room.DisconnectGrace,
		GameOverLinger:   cfg.Room.GameOverLinger,
		DataLayerTimeout: cfg.Room.DataLayerOpTimeout,
	}
	registry := room.NewRegistry(dl, chat, roomCfg)

	hub := websocket.NewHub(auth, sessions, registry)

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		if err := cold.Health(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "hokm"})
	})

	authRoutes := router.Group("/api/auth")
	{
		authRoutes.POST("/register", registerHandler(auth))
		authRoutes.POST("/login", loginHandler(auth))
	}

	router.GET("/ws", hub.HandleWebSocket)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	log.Printf("hokm server listening on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

func registerHandler(auth *authsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string  `json:"username" binding:"required"`
			Password string  `json:"password" binding:"required"`
			Email    *string `json:"email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		player, err := auth.Register(c.Request.Context(), req.Username, req.Password, req.Email)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"player_id": player.ID, "username": player.Username})
	}
}

func loginHandler(auth *authsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		player, token, err := auth.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"player_id": player.ID, "token": token})
	}
}
