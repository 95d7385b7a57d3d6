package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/job"
	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/service"
	"token-analyzer/pkg/utils"
)

const maxBodyBytes = 1 << 16

type analyzeRequest struct {
	TokenID string `json:"tokenId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// VisualizationData 默认格式：已落盘的两张表
type VisualizationData struct {
	Holders      []model.Holder         `json:"holders"`
	Transactions []model.TransferRecord `json:"transactions"`
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(utils.ISOMillisLayout),
	})
}

// analyze 启动分析或返回进行中运行的进度，不等待运行结束
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	var req analyzeRequest
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
			return
		}
	}
	if !utils.IsValidEntityID(req.TokenID) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid token ID format"})
		return
	}

	snap, err := s.runs.StartOrAttach(req.TokenID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	code := http.StatusOK
	if snap.Status == job.StatusStarted {
		code = http.StatusAccepted
	}
	s.writeJSON(w, code, snap)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("tokenId")
	if !utils.IsValidEntityID(tokenID) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid token ID format"})
		return
	}
	snap, err := s.runs.Status(r.Context(), tokenID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	code := http.StatusOK
	if snap.Status == job.StatusNotFound {
		code = http.StatusNotFound
	}
	s.writeJSON(w, code, snap)
}

func (s *Server) ongoing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runs.Ongoing())
}

// visualize ?format=graph 返回力导向图，否则返回原始表
func (s *Server) visualize(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("tokenId")
	if !utils.IsValidEntityID(tokenID) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid token ID format"})
		return
	}
	ctx := r.Context()

	holders, err := s.data.LoadHolders(ctx, tokenID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	transfers, err := s.data.LoadTransfers(ctx, tokenID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") != "graph" {
		s.writeJSON(w, http.StatusOK, VisualizationData{Holders: holders, Transactions: transfers})
		return
	}

	treasury := ""
	if info, err := s.data.LoadTokenInfo(ctx, tokenID); err == nil {
		treasury = info.TreasuryAccountID
	} else if !errors.Is(err, apperr.ErrDataNotFound) {
		s.logger.Warn("Failed to load token info for graph", zap.String("token_id", tokenID), zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, service.BuildGraph(holders, transfers, treasury))
}

// writeError 按错误分类映射状态码，数据缺失时返回提示用户先分析
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch apperr.Classify(err) {
	case apperr.KindValidation:
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid token ID format"})
	case apperr.KindNotFound:
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: apperr.ErrDataNotFound.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
