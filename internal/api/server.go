package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Kai-Ger/CardGallery/internal/api/auth"
	"github.com/Kai-Ger/CardGallery/internal/api/middleware"
	"github.com/Kai-Ger/CardGallery/internal/config"
	"github.com/Kai-Ger/CardGallery/internal/model"
	"github.com/Kai-Ger/CardGallery/internal/pkg/imagestore"
	"github.com/Kai-Ger/CardGallery/internal/pkg/metrics"
	"github.com/Kai-Ger/CardGallery/internal/pkg/notify"
	"github.com/Kai-Ger/CardGallery/internal/pkg/ratelimit"
	"github.com/Kai-Ger/CardGallery/internal/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// shutdownTimeout 优雅退出时等待在途请求的时间。
const shutdownTimeout = 10 * time.Second

// Server 是 CardGallery 的 HTTP 服务。
//
// 卡片目录、愿望单、评论和用户资料都挂在同一个 gin 引擎上；
// MySQL 存业务数据，Redis 存会话和限流桶，图片放对象存储。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db  *gorm.DB
	rdb *redis.Client

	router   *gin.Engine
	sessions *session.Store
	limiter  *ratelimit.RateLimiter
	mailer   notify.Notifier
	images   imagestore.Store
	auth     *auth.Handler

	cardStore CardStore
	wishStore WishStore
	userStore UserStore
}

// NewServer 建立所有依赖并注册路由。
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	gormLogLevel := gormlogger.Warn
	if cfg.App.Env == "local" {
		gormLogLevel = gormlogger.Info
	}

	db, err := gorm.Open(gormmysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Card{},
		&model.Wish{},
		&model.SentCard{},
		&model.Comment{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	images, err := imagestore.NewS3Store(ctx, imagestore.S3Config{
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		Endpoint:      cfg.Storage.Endpoint,
		KeyPrefix:     cfg.Storage.KeyPrefix,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init image store: %w", err)
	}

	metrics.InitMetrics()

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	sessions := session.NewStore(rdb, cfg.Security.SessionSecret, cfg.App.SessionTTL)
	mailer := notify.NewEmailNotifier(&cfg.Email, logger)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		sessions:  sessions,
		limiter:   ratelimit.NewRedisRateLimiter(rdb, cfg.App.RateLimit, cfg.App.RateBurst),
		mailer:    mailer,
		images:    images,
		auth:      auth.NewHandler(db, sessions, mailer, cfg.App.BaseURL, cfg.App.SessionTTL, logger),
		cardStore: dbCardStore{db: db},
		wishStore: dbWishStore{db: db},
		userStore: dbUserStore{db: db},
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	s.router = router
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/register", s.auth.Register)
	r.GET("/register/:token", s.auth.Activate)
	r.POST("/login", middleware.RateLimit(s.limiter, s.logger, "login"), s.auth.Login)
	r.POST("/forgot", middleware.RateLimit(s.limiter, s.logger, "forgot"), s.auth.Forgot)
	r.GET("/reset/:token", s.auth.ResetForm)
	r.POST("/reset/:token", s.auth.Reset)

	r.GET("/cards", s.handleListCards)
	r.GET("/cards/:id", s.handleGetCard)

	authed := r.Group("/")
	authed.Use(middleware.SessionAuth(s.sessions, s.userStore))
	{
		authed.POST("/logout", s.auth.Logout)

		authed.POST("/cards/:id/wish", middleware.RequireActive(), s.handleAddWish)

		authed.POST("/cards/:id/comments", s.handleCreateComment)
		authed.PUT("/cards/:id/comments/:commentId", s.handleUpdateComment)
		authed.DELETE("/cards/:id/comments/:commentId", s.handleDeleteComment)

		authed.GET("/users/:id", s.handleGetUser)
		authed.PUT("/users/:id", s.handleUpdateUser)
		authed.DELETE("/users/:id/wishes/:cardId", s.handleRemoveWish)
	}

	admin := authed.Group("/")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/cards", s.handleCreateCard)
		admin.PUT("/cards/:id", s.handleUpdateCard)
		admin.DELETE("/cards/:id", s.handleDeleteCard)

		admin.GET("/users", s.handleListUsers)
		admin.DELETE("/users/:id", s.handleDeleteUser)

		admin.POST("/users/:id/sent/:cardId", s.handleFulfillWish)
		admin.DELETE("/users/:id/sent/:sentId", s.handleRemoveSentRecord)
	}
}

// Run 启动 HTTP 服务并阻塞到 ctx 取消。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.App.HTTPAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.cfg.App.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Router 暴露 gin 引擎，测试用。
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Close 释放外部连接。
func (s *Server) Close() error {
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			return err
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.rdb.Ping(c.Request.Context()).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mysql unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseIDParam 解析路径中的数字 ID。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// canModify 资源属主本人或管理员可以操作。
func canModify(p middleware.Principal, ownerID uint) bool {
	return p.IsAdmin || p.ID == ownerID
}
