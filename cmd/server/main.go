package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-core/internal/authn"
	"github.com/pu-ac-cn/sso-core/internal/cipher"
	"github.com/pu-ac-cn/sso-core/internal/config"
	"github.com/pu-ac-cn/sso-core/internal/cookie"
	"github.com/pu-ac-cn/sso-core/internal/database"
	"github.com/pu-ac-cn/sso-core/internal/handler"
	"github.com/pu-ac-cn/sso-core/internal/mfa"
	"github.com/pu-ac-cn/sso-core/internal/middleware"
	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/redis"
	"github.com/pu-ac-cn/sso-core/internal/registry"
	"github.com/pu-ac-cn/sso-core/internal/repository"
	"github.com/pu-ac-cn/sso-core/internal/service"
	"github.com/pu-ac-cn/sso-core/pkg/response"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger := middleware.GetLogger()

	// 初始化数据库连接
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	log.Println("数据库连接成功")

	// Redis 仅在票据注册表选用时必需
	if cfg.Ticket.Registry == "redis" {
		if err := redis.Init(&cfg.Redis); err != nil {
			log.Fatalf("初始化 Redis 失败: %v", err)
		}
		defer redis.Close()
		log.Println("Redis 连接成功")
	}

	// 自动迁移数据库表
	if err := database.AutoMigrate(
		&model.User{},
		&model.RegisteredService{},
		&model.TicketRecord{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库迁移完成")

	// 票据注册表
	var tickets registry.TicketRegistry
	switch cfg.Ticket.Registry {
	case "redis":
		tickets = registry.NewRedis(redis.GetClient())
	case "database":
		tickets = registry.NewGorm(database.GetDB())
	default:
		tickets = registry.NewMemory()
	}

	// 票据体加密（配置了密钥才开启）
	if cfg.Ticket.EncryptionKey != "" {
		executor, err := cipher.New([]byte(cfg.Ticket.EncryptionKey), []byte(cfg.Ticket.SigningKey))
		if err != nil {
			log.Fatalf("初始化票据加密失败: %v", err)
		}
		tickets = registry.NewEncoded(tickets, executor)
	}

	// 过期票据清理器
	var cleaner *registry.Cleaner
	if cfg.Ticket.CleanerEnabled {
		cleaner = registry.NewCleaner(tickets, registry.CleanerConfig{
			InitialDelay: cfg.Ticket.CleanerInitialDelay,
			Interval:     cfg.Ticket.CleanerInterval,
		}, logger)
		cleaner.Start(context.Background())
		defer cleaner.Stop()
	}

	// 服务注册表
	servicesManager := service.NewServicesManager(
		repository.NewServiceRepository(database.GetDB()), logger)
	if err := servicesManager.Load(context.Background()); err != nil {
		log.Fatalf("加载服务注册表失败: %v", err)
	}

	// 票据过期策略
	tgtPolicy := model.MultiPolicy{Policies: []model.ExpirationPolicy{
		model.HardTimeoutPolicy{TTL: cfg.Ticket.TGTMaxTimeToLive},
		model.IdleTimeoutPolicy{Idle: cfg.Ticket.TGTTimeToKill},
	}}
	policies := service.TicketPolicies{
		TGT:                 tgtPolicy,
		ST:                  model.HardTimeoutPolicy{TTL: cfg.Ticket.STTimeToLive},
		RememberMeTGT:       model.RememberMePolicy{RememberTTL: cfg.Ticket.RememberMeTTL, Default: tgtPolicy},
		OnlyTrackMostRecent: cfg.Ticket.OnlyTrackMostRecent,
	}
	central := service.NewCentralService(tickets, servicesManager, policies, logger)

	// 认证处理器链
	var handlers []authn.Handler
	if len(cfg.Authn.AcceptUsers) > 0 {
		users := make(map[string]authn.AcceptUser, len(cfg.Authn.AcceptUsers))
		for name, password := range cfg.Authn.AcceptUsers {
			users[name] = authn.AcceptUser{Password: password}
		}
		handlers = append(handlers, authn.NewAcceptUsersHandler("accept-users", users, nil, nil))
	}
	if cfg.Authn.DatabaseHandler {
		handlers = append(handlers,
			authn.NewDatabaseHandler("database", repository.NewUserRepository(database.GetDB()), nil))
	}

	var policy authn.Policy
	switch cfg.Authn.Policy {
	case "all":
		policy = authn.AllPolicy{}
	case "required_handler":
		policy = authn.RequiredHandlerPolicy{HandlerName: cfg.Authn.RequiredHandler, TryAll: cfg.Authn.TryAll}
	case "not_prevented":
		policy = authn.NotPreventedPolicy{}
	default:
		policy = authn.AnyPolicy{TryAll: cfg.Authn.TryAll}
	}

	manager := authn.NewManager(handlers, policy,
		authn.WithHandlerTimeout(cfg.Authn.HandlerTimeout),
		authn.WithLogger(logger),
		authn.WithPopulators(
			authn.RememberMePopulator{},
			authn.SuccessfulHandlersPopulator{},
			authn.CredentialTypePopulator{},
		))

	// MFA 解析器
	var providers []mfa.Provider
	for _, p := range cfg.MFA.Providers {
		providers = append(providers, &mfa.StaticProvider{ProviderID: p.ID, RankValue: p.Rank})
	}
	var bypass mfa.BypassEvaluator = mfa.NeverBypass{}
	if cfg.MFA.BypassAttrName != "" {
		evaluator, err := mfa.NewAttributeBypassEvaluator(cfg.MFA.BypassAttrName, cfg.MFA.BypassAttrValue)
		if err != nil {
			log.Fatalf("初始化 MFA 旁路判定失败: %v", err)
		}
		bypass = evaluator
	}
	resolver := mfa.NewRankedResolver(
		mfa.NewServicePolicyResolver(providers, logger), bypass, logger)

	// 会话 Cookie 编解码器
	var cookieCipher cipher.Executor = cipher.NewNoOp()
	if cfg.Ticket.EncryptionKey != "" {
		cookieCipher, err = cipher.New([]byte(cfg.Ticket.EncryptionKey), []byte(cfg.Ticket.SigningKey))
		if err != nil {
			log.Fatalf("初始化 Cookie 加密失败: %v", err)
		}
	}
	codec, err := cookie.NewCodec(cookie.CodecConfig{
		SigningKey:    cfg.Cookie.SigningKey,
		Issuer:        cfg.Cookie.Issuer,
		MaxAge:        cfg.Cookie.MaxAge,
		RememberMeAge: cfg.Cookie.RememberMeAge,
	}, cookieCipher)
	if err != nil {
		log.Fatalf("初始化会话 Cookie 编解码器失败: %v", err)
	}

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(manager, central, servicesManager, resolver, codec, cfg.Cookie)
	ticketHandler := handler.NewTicketHandler(central, servicesManager, codec, cfg.Cookie)
	serviceHandler := handler.NewServiceHandler(servicesManager)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()

	// 全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		if err := database.Ping(); err != nil {
			dbStatus = "error"
		}

		sessions, _ := central.SessionCount(c.Request.Context())
		serviceTickets, _ := central.ServiceTicketCount(c.Request.Context())

		response.Success(c, gin.H{
			"status":          "ok",
			"time":            time.Now().Format(time.RFC3339),
			"database":        dbStatus,
			"sessions":        sessions,
			"service_tickets": serviceTickets,
		})
	})

	// API 路由组
	api := router.Group("/api/v1")
	{
		api.POST("/login", authHandler.Login)
		api.POST("/logout", authHandler.Logout)
		api.GET("/session", authHandler.Session)

		api.POST("/tickets", ticketHandler.Grant)
		api.POST("/validate", ticketHandler.Validate)
		api.POST("/proxy-granting", ticketHandler.GrantProxyGranting)
		api.POST("/proxy", ticketHandler.GrantProxy)

		services := api.Group("/services")
		{
			services.POST("", serviceHandler.Save)
			services.GET("", serviceHandler.List)
			services.GET("/:id", serviceHandler.Get)
			services.DELETE("/:id", serviceHandler.Delete)
		}
	}

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		log.Printf("服务启动，监听地址: %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，等待 5 秒
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务关闭失败: %v", err)
	}

	database.Close()
	if cfg.Ticket.Registry == "redis" {
		redis.Close()
	}

	log.Println("服务已关闭")
}
