package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/phone"
	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// Gateway é o cliente de saída para o Evolution. Falhas chegam como
// *evolution.APIError com o status HTTP, usado na decisão de retry.
type Gateway interface {
	SendText(ctx context.Context, instanceName, to, text string) (SendResult, error)
}

type SendResult struct {
	MessageID string
	Status    string
}

// Service concentra a ingestão de eventos do gateway e a decisão de
// resposta automática. Cada webhook é processado como invocação isolada;
// o banco é a única fonte de verdade entre entregas concorrentes.
type Service struct {
	instances   storage.InstanceRepository
	contacts    storage.ContactRepository
	messages    storage.MessageRepository
	settings    storage.SettingsRepository
	autoReplies storage.AutoReplyLogRepository
	clients     storage.ClientRepository
	gateway     Gateway
	log         *zap.Logger

	cooldown        time.Duration
	defaultCC       string
	defaultTimezone string
	now             func() time.Time
}

type Options struct {
	Cooldown           time.Duration
	DefaultCountryCode string
	DefaultTimezone    string
	// Now permite injetar o relógio em testes. Default: time.Now.
	Now func() time.Time
}

func NewService(
	instances storage.InstanceRepository,
	contacts storage.ContactRepository,
	messages storage.MessageRepository,
	settings storage.SettingsRepository,
	autoReplies storage.AutoReplyLogRepository,
	clients storage.ClientRepository,
	gateway Gateway,
	log *zap.Logger,
	opts Options,
) *Service {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 4 * time.Hour
	}
	if opts.DefaultCountryCode == "" {
		opts.DefaultCountryCode = "55"
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "America/Sao_Paulo"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		instances:       instances,
		contacts:        contacts,
		messages:        messages,
		settings:        settings,
		autoReplies:     autoReplies,
		clients:         clients,
		gateway:         gateway,
		log:             log,
		cooldown:        opts.Cooldown,
		defaultCC:       opts.DefaultCountryCode,
		defaultTimezone: opts.DefaultTimezone,
		now:             opts.Now,
	}
}

// ProcessWebhookEvent é o ponto de entrada único da ingestão. Instância
// desconhecida e evento não reconhecido são descartados com log, nunca
// erro: o remetente é um terceiro fora do nosso controle e reentregas
// tardias para instâncias removidas são esperadas.
func (s *Service) ProcessWebhookEvent(ctx context.Context, env Envelope) error {
	inst, err := s.instances.GetByExternalName(ctx, env.Instance)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("webhook: instância desconhecida, evento descartado",
			zap.String("instance", env.Instance),
			zap.String("event", env.Event),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("webhook: resolver instância %s: %w", env.Instance, err)
	}

	switch env.Event {
	case EventMessagesUpsert:
		return s.handleMessagesUpsert(ctx, inst, env.Payload)
	case EventMessagesUpdate:
		return s.handleMessagesUpdate(ctx, inst, env.Payload)
	case EventConnectionUpdate:
		return s.handleConnectionUpdate(ctx, inst, env.Payload)
	case EventQRCodeUpdated:
		return s.handleQRCodeUpdated(ctx, inst, env.Payload)
	case EventContactsUpsert:
		return s.handleContactsUpsert(ctx, inst, env.Payload)
	default:
		s.log.Info("webhook: evento não reconhecido, ignorado",
			zap.String("event", env.Event),
			zap.String("instance", env.Instance),
		)
		return nil
	}
}

// handleMessagesUpsert persiste mensagens de entrada e aciona a decisão
// de resposta automática. Ecos das nossas próprias mensagens (fromMe) são
// pulados. Falha no auto-reply é logada e não interrompe o processamento:
// a mensagem já está durável neste ponto.
func (s *Service) handleMessagesUpsert(ctx context.Context, inst model.Instance, raw json.RawMessage) error {
	var payload MessagesUpsertPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("webhook: payload de mensagem malformado, ignorado",
			zap.String("instanceId", inst.ID),
			zap.Error(err),
		)
		return nil
	}

	ignoreGroups := false
	if settings, err := s.settings.GetByInstance(ctx, inst.ID); err == nil {
		ignoreGroups = settings.IgnoreGroups
	}

	for _, msg := range payload.Messages {
		if msg.Key.FromMe {
			continue
		}
		if ignoreGroups && phone.IsGroupJID(msg.Key.RemoteJID) {
			s.log.Debug("webhook: mensagem de grupo ignorada",
				zap.String("instanceId", inst.ID),
				zap.String("remoteJid", msg.Key.RemoteJID),
			)
			continue
		}
		if msg.Key.ID == "" || msg.Key.RemoteJID == "" {
			s.log.Warn("webhook: mensagem sem chave, ignorada", zap.String("instanceId", inst.ID))
			continue
		}

		contact, err := s.syncContact(ctx, inst, EventContact{
			RemoteJID: msg.Key.RemoteJID,
			PushName:  msg.PushName,
		})
		if err != nil {
			return fmt.Errorf("webhook: sincronizar contato %s: %w", msg.Key.RemoteJID, err)
		}

		stored := model.Message{
			InstanceID: inst.ID,
			ContactID:  contact.ID,
			ExternalID: msg.Key.ID,
			FromMe:     false,
			Type:       mapMessageType(msg.Type),
			Text:       msg.Text,
			QuotedID:   msg.QuotedID,
			Status:     model.MessageStatusDelivered,
			Timestamp:  s.eventTimestamp(msg.Timestamp),
		}
		if msg.Media != nil {
			stored.MediaURL = msg.Media.URL
			stored.MediaMime = msg.Media.Mimetype
			stored.MediaSize = msg.Media.FileSize
			stored.MediaName = msg.Media.FileName
		}

		_, created, err := s.messages.Upsert(ctx, stored)
		if err != nil {
			return fmt.Errorf("webhook: persistir mensagem %s: %w", msg.Key.ID, err)
		}
		if !created {
			s.log.Debug("webhook: mensagem reentregue, ignorando duplicata",
				zap.String("instanceId", inst.ID),
				zap.String("externalId", msg.Key.ID),
			)
			continue
		}

		if err := s.contacts.TouchLastMessage(ctx, contact.ID, stored.Timestamp); err != nil {
			s.log.Warn("webhook: falha ao atualizar last_message_at",
				zap.String("contactId", contact.ID),
				zap.Error(err),
			)
		}

		if err := s.maybeAutoReply(ctx, inst, contact); err != nil {
			s.log.Error("webhook: falha na resposta automática", zap.Error(err))
		}
	}

	return nil
}

// handleMessagesUpdate avança o status de entrega. Status só anda para
// frente: um ack atrasado nunca regride read para delivered.
func (s *Service) handleMessagesUpdate(ctx context.Context, inst model.Instance, raw json.RawMessage) error {
	var payload MessagesUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("webhook: payload de status malformado, ignorado",
			zap.String("instanceId", inst.ID),
			zap.Error(err),
		)
		return nil
	}

	for _, update := range payload.Updates {
		next, ok := mapMessageStatus(update.Status)
		if !ok || update.Key.ID == "" {
			continue
		}

		current, err := s.messages.GetByExternalID(ctx, inst.ID, update.Key.ID)
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("webhook: status para mensagem desconhecida",
				zap.String("instanceId", inst.ID),
				zap.String("externalId", update.Key.ID),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("webhook: buscar mensagem %s: %w", update.Key.ID, err)
		}

		if statusRank(next) <= statusRank(current.Status) {
			continue
		}

		if err := s.messages.UpdateStatusByExternalID(ctx, inst.ID, update.Key.ID, next); err != nil {
			return fmt.Errorf("webhook: atualizar status de %s: %w", update.Key.ID, err)
		}
	}

	return nil
}

func (s *Service) handleConnectionUpdate(ctx context.Context, inst model.Instance, raw json.RawMessage) error {
	var payload ConnectionUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("webhook: payload de conexão malformado, ignorado",
			zap.String("instanceId", inst.ID),
			zap.Error(err),
		)
		return nil
	}

	next, ok := mapConnectionState(payload.State)
	if !ok {
		s.log.Warn("webhook: estado de conexão desconhecido, ignorado",
			zap.String("instanceId", inst.ID),
			zap.String("state", payload.State),
		)
		return nil
	}

	var phoneNumber string
	if payload.PhoneNumber != "" {
		if normalized, err := phone.FromJID(payload.PhoneNumber, s.defaultCC); err == nil {
			phoneNumber = normalized
		}
	}

	updated, changed := applyConnectionTransition(inst, next, phoneNumber, s.now().UTC())
	if !changed {
		s.log.Debug("webhook: transição de conexão suprimida",
			zap.String("instanceId", inst.ID),
			zap.String("current", string(inst.Status)),
			zap.String("received", string(next)),
		)
		return nil
	}

	if _, err := s.instances.Update(ctx, updated); err != nil {
		return fmt.Errorf("webhook: atualizar estado da instância %s: %w", inst.ID, err)
	}

	s.log.Info("webhook: estado de conexão atualizado",
		zap.String("instanceId", inst.ID),
		zap.String("from", string(inst.Status)),
		zap.String("to", string(updated.Status)),
	)

	return nil
}

func (s *Service) handleQRCodeUpdated(ctx context.Context, inst model.Instance, raw json.RawMessage) error {
	var payload QRCodeUpdatedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("webhook: payload de QR malformado, ignorado",
			zap.String("instanceId", inst.ID),
			zap.Error(err),
		)
		return nil
	}

	code := payload.QRCode.Code
	if code == "" {
		code = payload.QRCode.Base64
	}
	if code == "" {
		s.log.Warn("webhook: QR vazio, ignorado", zap.String("instanceId", inst.ID))
		return nil
	}

	now := s.now().UTC()
	inst.QRCode = code
	inst.QRUpdatedAt = &now
	inst.Status = model.InstanceStatusQRCode
	inst.LastSeenAt = &now

	if _, err := s.instances.Update(ctx, inst); err != nil {
		return fmt.Errorf("webhook: gravar QR da instância %s: %w", inst.ID, err)
	}

	s.log.Info("webhook: QR atualizado", zap.String("instanceId", inst.ID))
	return nil
}

func (s *Service) handleContactsUpsert(ctx context.Context, inst model.Instance, raw json.RawMessage) error {
	var payload ContactsUpsertPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("webhook: payload de contatos malformado, ignorado",
			zap.String("instanceId", inst.ID),
			zap.Error(err),
		)
		return nil
	}

	for _, c := range payload.Contacts {
		if c.RemoteJID == "" {
			continue
		}
		if _, err := s.syncContact(ctx, inst, c); err != nil {
			return fmt.Errorf("webhook: sincronizar contato %s: %w", c.RemoteJID, err)
		}
	}

	return nil
}

// eventTimestamp converte o unix do evento; eventos sem carimbo recebem o
// relógio do serviço.
func (s *Service) eventTimestamp(unix int64) time.Time {
	if unix <= 0 {
		return s.now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}

// syncContact cria ou atualiza o contato pelo par (instância, JID).
// O vínculo com cliente é responsabilidade do matcher, que roda depois.
func (s *Service) syncContact(ctx context.Context, inst model.Instance, evt EventContact) (model.Contact, error) {
	contact := model.Contact{
		InstanceID:    inst.ID,
		RemoteJID:     evt.RemoteJID,
		Name:          evt.PushName,
		ProfilePicURL: evt.ProfilePicURL,
		Type:          model.ContactTypeUnknown,
	}

	if normalized, err := phone.FromJID(evt.RemoteJID, s.defaultCC); err == nil {
		contact.Phone = normalized
	}

	return s.contacts.Upsert(ctx, contact)
}
