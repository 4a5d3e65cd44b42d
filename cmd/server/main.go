package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"skill-swap/backend/config"
	"skill-swap/backend/internal/api/handler"
	"skill-swap/backend/internal/api/router"
	"skill-swap/backend/internal/notify"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/internal/repository"
	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/database"
	"skill-swap/backend/pkg/jwt"
	applogger "skill-swap/backend/pkg/logger"
	"skill-swap/backend/pkg/mail"
	"skill-swap/backend/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	flag.Parse()

	// 0. 本地开发时从 .env 注入环境变量（文件不存在时忽略）
	_ = godotenv.Load()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("mail_provider", cfg.Mail.Provider),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单与跨实例推送将不可用", zap.Error(err))
		rdb = nil
	}
	var blacklist service.TokenBlacklist
	if rdb != nil {
		blacklist = rdb
	}

	// 5. 实时变更广播
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	broker := realtime.NewBroker(rdb, cfg.Redis.Channel, logger)
	go broker.Run(ctx)

	// 6. 邮件与通知
	sender, err := mail.New(&cfg.Mail, logger)
	if err != nil {
		logger.Fatal("初始化邮件服务失败", zap.Error(err))
	}
	renderer, err := notify.NewRenderer(cfg.Server.SiteURL)
	if err != nil {
		logger.Fatal("加载邮件模板失败", zap.Error(err))
	}

	// 7. 依赖注入: Repository → Service → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)
	dispatcher := notify.NewDispatcher(repo, sender, renderer, logger)
	notifier := notify.NewNotifier(dispatcher, cfg.Mail.Timeout, cfg.Mail.MaxInFlight, logger)

	svc := service.NewService(service.Deps{
		Config:     cfg,
		Repo:       repo,
		JWT:        jwtMgr,
		Blacklist:  blacklist,
		Mail:       sender,
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Publisher:  broker,
		Logger:     logger,
	})
	h := handler.NewHandler(cfg, svc, broker, logger)

	// 8. 初始化路由
	engine := router.Setup(ctx, cfg, h, jwtMgr, rdb, sqlDB, logger)

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 停止接收跨实例事件与本地限流清理，断开全部实时订阅
	stop()
	broker.Close()

	// 等待进行中的通知投递完成
	if err := notifier.Shutdown(shutdownCtx); err != nil {
		logger.Warn("部分通知未能在关闭前投递完成", zap.Error(err))
	}

	// 关闭数据库连接
	if err := sqlDB.Close(); err != nil {
		logger.Error("关闭数据库连接失败", zap.Error(err))
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
