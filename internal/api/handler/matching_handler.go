package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/pkg/response"
	"github.com/zapgestor/zapgestor/internal/service/matcher"
	"github.com/zapgestor/zapgestor/internal/storage"
	storage_redis "github.com/zapgestor/zapgestor/internal/storage/redis"
)

// matchingLockTTL limita quanto tempo um passo de pareamento pode
// segurar o lock distribuído antes de expirar sozinho.
const matchingLockTTL = 10 * time.Minute

type MatchingHandler struct {
	matcher *matcher.Service
	redis   *storage_redis.Client // nil quando Redis está desabilitado
	log     *zap.Logger
}

func NewMatchingHandler(m *matcher.Service, redis *storage_redis.Client, log *zap.Logger) *MatchingHandler {
	return &MatchingHandler{matcher: m, redis: redis, log: log}
}

func (h *MatchingHandler) Register(r *gin.RouterGroup) {
	r.POST("/matching/run", h.run)
	r.GET("/instances/:id/matching/stats", h.stats)
	r.POST("/contacts/:id/match", h.matchOne)
}

type runMatchingRequest struct {
	// InstanceID vazio executa o passo global, sobre todas as instâncias.
	InstanceID   string `json:"instance_id"`
	BatchSize    int    `json:"batch_size"`
	BatchDelayMs int    `json:"batch_delay_ms"`
}

// run executa um passo completo de pareamento de forma síncrona.
// Com Redis habilitado, um lock por escopo impede que dois passos
// concorrentes disputem os mesmos contatos.
func (h *MatchingHandler) run(c *gin.Context) {
	var req runMatchingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	if h.redis != nil {
		lock := storage_redis.NewLock(h.redis, matcher.LockKey(req.InstanceID), matchingLockTTL)
		acquired, err := lock.Acquire(c.Request.Context())
		if err != nil {
			response.Error(c, http.StatusInternalServerError, err)
			return
		}
		if !acquired {
			response.ErrorWithMessage(c, http.StatusConflict, "pareamento já em execução para este escopo")
			return
		}
		defer func() {
			if err := lock.Release(c.Request.Context()); err != nil {
				h.log.Warn("matching: falha ao liberar lock", zap.Error(err))
			}
		}()
	}

	result, err := h.matcher.RunMatchingPass(c.Request.Context(), matcher.Options{
		InstanceID: req.InstanceID,
		BatchSize:  req.BatchSize,
		BatchDelay: time.Duration(req.BatchDelayMs) * time.Millisecond,
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	h.log.Info("matching: passo concluído",
		zap.String("instanceId", req.InstanceID),
		zap.Int("pareados", result.MatchedCount),
		zap.Int("processados", result.TotalProcessed),
		zap.Int("erros", len(result.Errors)),
		zap.Int64("duracaoMs", result.ExecutionTimeMs),
	)
	response.Success(c, http.StatusOK, result)
}

func (h *MatchingHandler) stats(c *gin.Context) {
	stats, err := h.matcher.GetStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

func (h *MatchingHandler) matchOne(c *gin.Context) {
	matched, err := h.matcher.MatchOne(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		response.ErrorWithMessage(c, http.StatusNotFound, "contato não encontrado")
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"matched": matched})
}
