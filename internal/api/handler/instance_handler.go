package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/availability"
	"github.com/zapgestor/zapgestor/internal/gateway/evolution"
	"github.com/zapgestor/zapgestor/internal/pkg/response"
	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// Connector é o pedaço do gateway que o handler de instâncias usa.
type Connector interface {
	Connect(ctx context.Context, instanceName string) (evolution.ConnectResponse, error)
	GetConnectionState(ctx context.Context, instanceName string) (string, error)
}

type InstanceHandler struct {
	instances storage.InstanceRepository
	settings  storage.SettingsRepository
	gateway   Connector
	log       *zap.Logger
}

func NewInstanceHandler(instances storage.InstanceRepository, settings storage.SettingsRepository, gateway Connector, log *zap.Logger) *InstanceHandler {
	return &InstanceHandler{
		instances: instances,
		settings:  settings,
		gateway:   gateway,
		log:       log,
	}
}

func (h *InstanceHandler) Register(r *gin.RouterGroup) {
	r.GET("/instances", h.list)
	r.GET("/instances/:id", h.get)
	r.POST("/instances", h.create)
	r.DELETE("/instances/:id", h.delete)
	r.POST("/instances/:id/connect", h.connect)
	r.GET("/instances/:id/qr.png", h.qrPNG)
	r.GET("/instances/:id/settings", h.getSettings)
	r.PUT("/instances/:id/settings", h.putSettings)
}

type createInstanceRequest struct {
	ExternalName string `json:"external_name" binding:"required,min=2"`
	DisplayName  string `json:"display_name"`
	Timezone     string `json:"timezone"`
}

func (h *InstanceHandler) create(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			response.ErrorWithMessage(c, http.StatusBadRequest, "timezone inválido: "+req.Timezone)
			return
		}
	}

	inst, err := h.instances.Create(c.Request.Context(), model.Instance{
		ExternalName: req.ExternalName,
		DisplayName:  req.DisplayName,
		Timezone:     req.Timezone,
		Status:       model.InstanceStatusDisconnected,
	})
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusCreated, inst)
}

func (h *InstanceHandler) list(c *gin.Context) {
	instances, err := h.instances.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, instances)
}

func (h *InstanceHandler) get(c *gin.Context) {
	inst, err := h.instances.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, inst)
}

func (h *InstanceHandler) delete(c *gin.Context) {
	err := h.instances.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// connect pede ao gateway um novo pareamento e guarda o QR retornado.
// O estado definitivo chega depois pelos eventos de webhook.
func (h *InstanceHandler) connect(c *gin.Context) {
	inst, err := h.instances.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	resp, err := h.gateway.Connect(c.Request.Context(), inst.ExternalName)
	if err != nil {
		h.log.Error("connect: gateway falhou",
			zap.String("instanceId", inst.ID),
			zap.Error(err),
		)
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	code := resp.Code
	if code == "" {
		code = resp.Base64
	}
	if code != "" {
		now := time.Now().UTC()
		inst.QRCode = code
		inst.QRUpdatedAt = &now
		inst.Status = model.InstanceStatusQRCode
		if inst, err = h.instances.Update(c.Request.Context(), inst); err != nil {
			response.Error(c, http.StatusInternalServerError, err)
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":  inst.Status,
		"qr_code": inst.QRCode,
	})
}

// qrPNG serve o último QR conhecido como imagem. O gateway entrega o QR
// ora como texto de pareamento, ora como PNG já codificado em base64.
func (h *InstanceHandler) qrPNG(c *gin.Context) {
	inst, err := h.instances.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	if inst.QRCode == "" {
		response.ErrorWithMessage(c, http.StatusNotFound, "instância não possui QR pendente")
		return
	}

	if strings.HasPrefix(inst.QRCode, "data:image") {
		_, payload, found := strings.Cut(inst.QRCode, ",")
		if !found {
			response.ErrorWithMessage(c, http.StatusInternalServerError, "QR armazenado em formato inesperado")
			return
		}
		png, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "image/png", png)
		return
	}

	png, err := qrcode.Encode(inst.QRCode, qrcode.Medium, 256)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *InstanceHandler) getSettings(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.instances.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	settings, err := h.settings.GetByInstance(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		// Instância sem configuração devolve os padrões.
		response.Success(c, http.StatusOK, model.InstanceSettings{InstanceID: id})
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}

type putSettingsRequest struct {
	RejectCalls       bool           `json:"reject_calls"`
	IgnoreGroups      bool           `json:"ignore_groups"`
	SendReadReceipts  bool           `json:"send_read_receipts"`
	AutoReplyEnabled  bool           `json:"auto_reply_enabled"`
	AutoReplyTemplate string         `json:"auto_reply_template"`
	Schedule          model.Schedule `json:"schedule"`
}

func (h *InstanceHandler) putSettings(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.instances.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	if err := availability.Validate(req.Schedule); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	saved, err := h.settings.Save(c.Request.Context(), model.InstanceSettings{
		InstanceID:        id,
		RejectCalls:       req.RejectCalls,
		IgnoreGroups:      req.IgnoreGroups,
		SendReadReceipts:  req.SendReadReceipts,
		AutoReplyEnabled:  req.AutoReplyEnabled,
		AutoReplyTemplate: req.AutoReplyTemplate,
		Schedule:          req.Schedule,
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, saved)
}
