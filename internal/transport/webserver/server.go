package webserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mkarpushin/papertrade/config"
	"github.com/mkarpushin/papertrade/internal/transport/webserver/middleware"
)

type WebServer struct {
	srv *http.Server
}

func New(cfg *config.Config, ctrl *Controller, sessionStore middleware.SessionStore) *WebServer {
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Logger())
	engine.LoadHTMLGlob(cfg.HTTP.TemplatesGlob)

	setupRoutes(engine, ctrl, sessionStore)

	return &WebServer{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler: engine,
		},
	}
}

func setupRoutes(engine *gin.Engine, ctrl *Controller, sessionStore middleware.SessionStore) {
	engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	engine.GET("/login", ctrl.LoginPage)
	engine.POST("/login", ctrl.Login)
	engine.GET("/logout", ctrl.Logout)
	engine.GET("/register", ctrl.RegisterPage)
	engine.POST("/register", ctrl.Register)
	engine.GET("/check", ctrl.Check)

	protected := engine.Group("/", middleware.Auth(sessionStore))
	protected.GET("/", ctrl.Index)
	protected.GET("/buy", ctrl.BuyPage)
	protected.POST("/buy", ctrl.Buy)
	protected.GET("/sell", ctrl.SellPage)
	protected.POST("/sell", ctrl.Sell)
	protected.GET("/quote", ctrl.QuotePage)
	protected.POST("/quote", ctrl.Quote)
	protected.POST("/deposit", ctrl.Deposit)
	protected.GET("/history", ctrl.History)
	protected.GET("/export", ctrl.Export)
}

func (s *WebServer) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", slog.String("err", err.Error()))
			panic(err)
		}
	}()
	slog.Info("webserver started!", slog.String("addr", s.srv.Addr))
}

func (s *WebServer) Stop(ctx context.Context) {
	slog.Info("start stopping webserver")
	if err := s.srv.Shutdown(ctx); err != nil {
		slog.Error("webserver shutdown error", slog.String("err", err.Error()))
	}
	slog.Info("webserver stopped")
}
