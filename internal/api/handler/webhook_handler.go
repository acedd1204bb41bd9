package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/pkg/queue"
	"github.com/zapgestor/zapgestor/internal/pkg/response"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type WebhookHandler struct {
	queue queue.Queue
	log   *zap.Logger
}

func NewWebhookHandler(q queue.Queue, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{queue: q, log: log}
}

func (h *WebhookHandler) Register(r *gin.RouterGroup) {
	r.POST("/webhook", h.receive)
	// O gateway pode ser configurado com webhook_by_events, que adiciona
	// o nome do evento ao caminho. Aceitamos ambos os formatos.
	r.POST("/webhook/:event", h.receive)
}

type webhookEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// receive enfileira o evento e responde imediatamente. Sempre devolve
// 200 para eventos aceitos ou ignorados: respostas de erro fariam o
// gateway reentregar o mesmo evento em loop.
func (h *WebhookHandler) receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.Warn("webhook: erro ao ler corpo", zap.Error(err))
		response.Success(c, http.StatusOK, gin.H{"queued": false})
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Event == "" {
		h.log.Warn("webhook: payload malformado, ignorando",
			zap.Int("bytes", len(body)),
			zap.Error(err),
		)
		response.Success(c, http.StatusOK, gin.H{"queued": false})
		return
	}

	job := queue.Job{
		ID:         uuid.New().String(),
		Event:      env.Event,
		Instance:   env.Instance,
		Payload:    env.Data,
		ReceivedAt: time.Now().UTC(),
	}

	if err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		// Fila cheia ou fechada: registra e descarta. O gateway não
		// deve ficar bloqueado esperando o consumidor.
		h.log.Error("webhook: falha ao enfileirar evento",
			zap.String("evento", env.Event),
			zap.String("instancia", env.Instance),
			zap.Error(err),
		)
		response.Success(c, http.StatusOK, gin.H{"queued": false})
		return
	}

	h.log.Debug("webhook: evento enfileirado",
		zap.String("evento", env.Event),
		zap.String("instancia", env.Instance),
	)
	response.Success(c, http.StatusOK, gin.H{"queued": true})
}
