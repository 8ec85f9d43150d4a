// Package api exposes the face login, OTP and violation evaluation
// operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/auth"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/config"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/otp"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/violation"
)

// Server serves the HTTP API.
type Server struct {
	engine     *gin.Engine
	auth       *auth.Service
	violations *violation.Processor
	otps       *otp.Store
	cfg        config.ServerConfig
	exposeOTP  bool
}

// NewServer builds the router. otps is only consulted for the diagnostic
// OTP listing, which is mounted when exposeOTP is set.
func NewServer(cfg config.ServerConfig, svc *auth.Service, proc *violation.Processor, otps *otp.Store, exposeOTP bool) *Server {
	gin.SetMode(cfg.Mode)

	s := &Server{
		engine:     gin.New(),
		auth:       svc,
		violations: proc,
		otps:       otps,
		cfg:        cfg,
		exposeOTP:  exposeOTP,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	server := s.engine
	server.Use(gin.Recovery())
	server.Use(requestLogger())
	server.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	server.Use(limitBody(int64(s.cfg.MaxBodyMB) << 20))

	server.GET("/ping", func(ctx *gin.Context) {
		respond(ctx, http.StatusOK, statusSuccess, "pong!", nil)
	})

	userLogin := server.Group("/api/userlogin")
	{
		userLogin.GET("/face-login/", s.faceLoginInfo)
		userLogin.POST("/face-login/", s.faceLogin)
		userLogin.POST("/send-otp/", s.sendOTP)
		userLogin.POST("/verify-otp/", s.verifyOTP)
		userLogin.POST("/register/", s.register)
		userLogin.POST("/validate-face-quality/", s.validateFaceQuality)
		userLogin.GET("/migrate-face-data/", s.migrationStatus)
		userLogin.POST("/migrate-face-data/", s.migrate)
		userLogin.GET("/debug-face-data/", s.debugFaceData)
		if s.exposeOTP && s.otps != nil {
			userLogin.GET("/debug-otp/", s.debugOTP)
		}
	}

	liveDetection := server.Group("/api/livedetection")
	{
		liveDetection.POST("/evaluate/", s.evaluate)
	}

	server.NoRoute(func(ctx *gin.Context) {
		respond(ctx, http.StatusNotFound, statusError, fmt.Sprintf("%s %s does not exist", ctx.Request.Method, ctx.Request.URL), nil)
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("Server starting on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		entry := logging.WithFields(logging.Fields{
			"method":    ctx.Request.Method,
			"path":      ctx.Request.URL.Path,
			"status":    ctx.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": ctx.ClientIP(),
		})
		if len(ctx.Errors) > 0 {
			entry = entry.WithField("errors", ctx.Errors.String())
		}
		switch {
		case ctx.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		default:
			entry.Info("Request handled")
		}
	}
}

func limitBody(limit int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if limit > 0 && ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
		}
		ctx.Next()
	}
}
