package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"token-analyzer/internal/worker/config"
	"token-analyzer/internal/worker/job"
	"token-analyzer/internal/worker/model"
	"token-analyzer/pkg/logger"
)

// Runs 接口层用到的运行管理能力，*job.RunManager 实现了它
type Runs interface {
	StartOrAttach(tokenID string) (job.RunSnapshot, error)
	Status(ctx context.Context, tokenID string) (job.RunSnapshot, error)
	Ongoing() []job.RunSnapshot
}

// Reader 可视化接口只读已落盘的数据
type Reader interface {
	LoadTokenInfo(ctx context.Context, tokenID string) (*model.TokenInfo, error)
	LoadHolders(ctx context.Context, tokenID string) ([]model.Holder, error)
	LoadTransfers(ctx context.Context, tokenID string) ([]model.TransferRecord, error)
}

type Server struct {
	cfg    config.ServerConfig
	runs   Runs
	data   Reader
	logger *zap.Logger
	now    func() time.Time
	server *http.Server
}

func NewServer(cfg config.ServerConfig, runs Runs, data Reader, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		runs:   runs,
		data:   data,
		logger: logger,
		now:    time.Now,
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Handler 路由加 CORS，测试直接挂到 httptest 上
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /{$}", s.root)
	s.handle(mux, "GET /health", s.health)
	s.handle(mux, "POST /analyze", s.analyze)
	s.handle(mux, "GET /analyze/ongoing", s.ongoing)
	s.handle(mux, "GET /analyze/{tokenId}/status", s.status)
	s.handle(mux, "GET /visualize/{tokenId}", s.visualize)
	return s.cors(mux)
}

func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx, span := logger.StartSpanWithRequest(r, "api", pattern)
		defer span.End()

		start := time.Now()
		fn(w, r.WithContext(ctx))
		logger.WithTrace(ctx, s.logger).Debug("Handled request",
			zap.String("pattern", pattern),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(s.cfg.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run 后台启动 HTTP 服务
func (s *Server) Run() {
	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.cfg.Addr), zap.Strings("allowed_origins", s.cfg.AllowedOrigins))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", zap.String("addr", s.cfg.Addr), zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.server.SetKeepAlivesEnabled(false)
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
