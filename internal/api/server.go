package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"agrimandi/internal/api/auth"
	"agrimandi/internal/api/middleware"
	"agrimandi/internal/api/scheduler"
	"agrimandi/internal/config"
	"agrimandi/internal/market"
	"agrimandi/internal/model"
	"agrimandi/internal/pkg/dedup"
	"agrimandi/internal/pkg/metrics"
	"agrimandi/internal/pkg/notify"
	"agrimandi/internal/pkg/paygate"
	"agrimandi/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、支付网关客户端以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	rdb      *redis.Client
	router   *gin.Engine
	sched    *scheduler.Scheduler
	auth     *auth.Handler
	ledger   Ledger
	alerts   AlertService
	checkout CheckoutStore
	payments SessionCreator
	verifier EventVerifier
	deduper  Deduper
	limiter  Limiter
	trigger  PassTrigger
}

// Ledger 是出价状态机的消费端接口。
type Ledger interface {
	PlaceBid(ctx context.Context, listingID, buyerID uint, amount float64) (*model.Bid, error)
	WithdrawBid(ctx context.Context, bidID, requesterID uint) error
	Decide(ctx context.Context, bidID, requesterID uint, decision market.Decision) error
	MarkCompleted(ctx context.Context, bidID uint, amountPaid float64, method string) error
}

// AlertService 提醒已读操作。
type AlertService interface {
	Dismiss(ctx context.Context, alertID, requesterID uint) error
}

// CheckoutStore 支付会话创建前的出价详情查询。
type CheckoutStore interface {
	GetBidDetail(ctx context.Context, bidID uint) (*BidDetail, error)
}

// BidDetail 创建支付会话所需的出价信息。
type BidDetail struct {
	ID       uint
	BuyerID  uint
	Status   model.BidStatus
	Amount   float64
	CropName string
}

// SessionCreator 支付网关会话创建。
type SessionCreator interface {
	CreateSession(bidID, userID uint, amount float64, description string) (*paygate.Session, error)
}

// EventVerifier 网关通知签名校验与扁平化。
type EventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (*paygate.Event, error)
}

// Deduper 网关事件重放守卫。
type Deduper interface {
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Limiter 支付会话创建限流。
type Limiter interface {
	Acquire(ctx context.Context, subKey string) error
}

// PassTrigger 手动触发一轮 MSP 对账。
type PassTrigger interface {
	TriggerNow() bool
}

type dbCheckoutStore struct {
	db *gorm.DB
}

func (s dbCheckoutStore) GetBidDetail(ctx context.Context, bidID uint) (*BidDetail, error) {
	var detail BidDetail
	err := s.db.WithContext(ctx).Table("bids").
		Select("bids.id, bids.buyer_id, bids.status, bids.bid_amount AS amount, crops.name AS crop_name").
		Joins("JOIN crop_listings ON crop_listings.id = bids.listing_id").
		Joins("JOIN crops ON crops.id = crop_listings.crop_id").
		Where("bids.id = ?", bidID).
		Scan(&detail).Error
	if err != nil {
		return nil, err
	}
	if detail.ID == 0 {
		return nil, market.ErrNotFound
	}
	return &detail, nil
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 装配出价台账、提醒生成器、支付网关与调度器
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Crop{},
		&model.MSPPrice{},
		&model.CropListing{},
		&model.Bid{},
		&model.UserAlert{},
		&model.Transaction{},
	); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	emailNotifier := notify.NewEmailNotifier(&cfg.Email, logger)

	store := market.NewGormStore(db)
	ledger := market.NewLedger(store, logger)
	generator := market.NewGenerator(store, emailNotifier, cfg.App.MSPSeason, logger)

	sched := scheduler.NewScheduler(
		logger,
		generator,
		cfg.App.MSPCheckInterval,
		cfg.App.WorkerPoolSize,
		cfg.App.QueueCapacity,
	)

	deduper := dedup.NewDeduplicator(rdb, time.Duration(cfg.App.WebhookDedupWindow)*time.Second)
	limiter := ratelimit.NewRedisRateLimiter(
		rdb,
		logger,
		"agrimandi:ratelimit:checkout",
		cfg.App.CheckoutRateLimit,
		cfg.App.CheckoutRateBurst,
	)
	gateway := paygate.NewClient(cfg.Stripe, logger)

	// 初始化 Prometheus 指标
	metrics.InitMetrics(cfg.App.WorkerPoolSize)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		rdb:      rdb,
		router:   r,
		sched:    sched,
		auth:     auth.NewHandler(db, cfg.Security.JWTSecret, emailNotifier, logger),
		ledger:   ledger,
		alerts:   generator,
		checkout: dbCheckoutStore{db: db},
		payments: gateway,
		verifier: gateway,
		deduper:  deduper,
		limiter:  limiter,
		trigger:  sched,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartScheduler 启动 MSP 对账调度器。
func (s *Server) StartScheduler(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in msp scheduler", slog.Any("panic", r))
			}
		}()
		s.sched.Run(ctx)
	}()
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/register", s.auth.Register)
	s.router.POST("/login", s.auth.Login)
	s.router.POST("/verify", s.auth.VerifyEmail)
	s.router.POST("/resend", s.auth.ResendCode)

	// 网关回调自带签名校验，不走 JWT
	s.router.POST("/webhooks/payment", s.handlePaymentWebhook)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.POST("/logout", s.auth.Logout)

	authed.GET("/crops", s.handleListCrops)
	authed.GET("/listings", s.handleListListings)
	authed.GET("/msp", s.handleListMSP)
	authed.GET("/alerts", s.handleListAlerts)
	authed.POST("/alerts/:id/read", s.handleMarkAlertRead)
	authed.POST("/alerts/check", s.handleTriggerAlertCheck)

	farmer := authed.Group("/")
	farmer.Use(middleware.RequireRole(model.RoleFarmer, model.RoleAdmin))
	farmer.POST("/listings", s.handleCreateListing)
	farmer.GET("/my/listings", s.handleMyListings)
	farmer.POST("/listings/:id/status", s.handleUpdateListingStatus)
	farmer.GET("/bids", s.handleFarmerBids)
	farmer.POST("/bids/:id/decision", s.handleDecideBid)
	farmer.GET("/msp/procurement", s.handleProcurementOptions)

	buyer := authed.Group("/")
	buyer.Use(middleware.RequireRole(model.RoleBuyer, model.RoleAdmin))
	buyer.POST("/listings/:id/bids", s.handlePlaceBid)
	buyer.GET("/my/bids", s.handleMyBids)
	buyer.DELETE("/bids/:id", s.handleWithdrawBid)
	buyer.POST("/checkout/session", s.handleCreateCheckoutSession)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	admin.GET("/overview", s.handleAdminOverview)
	admin.PATCH("/msp/:id", s.handleUpdateMSP)
	admin.DELETE("/users/:id", s.handleDeleteUser)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusForError 把领域错误映射为 HTTP 状态码。
func statusForError(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, market.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInvalidTransition),
		errors.Is(err, market.ErrListingUnavailable),
		errors.Is(err, market.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, market.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func getUserID(c *gin.Context) uint {
	return uint(c.GetInt("userID"))
}
