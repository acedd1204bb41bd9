package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/availability"
	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// AutoReplyError identifica falhas no pipeline de resposta automática.
// Carrega instância e contato para diagnóstico; o despachante loga e segue,
// pois a mensagem de entrada já foi persistida antes desta decisão rodar.
type AutoReplyError struct {
	InstanceID string
	ContactID  string
	Err        error
}

func (e *AutoReplyError) Error() string {
	return fmt.Sprintf("auto-reply: instância %s, contato %s: %v", e.InstanceID, e.ContactID, e.Err)
}

func (e *AutoReplyError) Unwrap() error {
	return e.Err
}

// maybeAutoReply decide se uma mensagem de entrada dispara a resposta
// automática de fora de horário e, em caso positivo, envia e registra.
//
//  1. configuração desabilitada ou sem template -> nada a fazer;
//  2. dentro do horário de atendimento -> nada a fazer;
//  3. já houve envio para o contato dentro do cooldown -> nada a fazer;
//  4. caso contrário renderiza, envia pelo gateway e grava o log.
func (s *Service) maybeAutoReply(ctx context.Context, inst model.Instance, contact model.Contact) error {
	fail := func(err error) error {
		return &AutoReplyError{InstanceID: inst.ID, ContactID: contact.ID, Err: err}
	}

	settings, err := s.settings.GetByInstance(ctx, inst.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fail(fmt.Errorf("carregar configurações: %w", err))
	}

	if !settings.AutoReplyEnabled || settings.AutoReplyTemplate == "" {
		return nil
	}

	// Grupos e contatos sincronizados sem número discável não recebem
	// resposta: o gateway exige um destino E.164.
	if contact.Phone == "" {
		s.log.Debug("auto-reply: contato sem telefone, envio suprimido",
			zap.String("instanceId", inst.ID),
			zap.String("contactId", contact.ID),
		)
		return nil
	}

	now := s.now().In(s.instanceLocation(inst))
	if availability.IsAvailable(settings.Schedule, now) {
		return nil
	}

	since := now.Add(-s.cooldown)
	_, err = s.autoReplies.LastSince(ctx, inst.ID, contact.ID, since)
	if err == nil {
		s.log.Debug("auto-reply: cooldown ativo, envio suprimido",
			zap.String("instanceId", inst.ID),
			zap.String("contactId", contact.ID),
		)
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fail(fmt.Errorf("consultar cooldown: %w", err))
	}

	text := RenderTemplate(settings.AutoReplyTemplate, s.templateVars(ctx, contact))

	result, err := s.gateway.SendText(ctx, inst.ExternalName, contact.Phone, text)
	if err != nil {
		return fail(fmt.Errorf("enviar pelo gateway: %w", err))
	}

	if result.MessageID != "" {
		outbound := model.Message{
			InstanceID: inst.ID,
			ContactID:  contact.ID,
			ExternalID: result.MessageID,
			FromMe:     true,
			Type:       model.MessageTypeText,
			Text:       text,
			Status:     model.MessageStatusSent,
			Timestamp:  s.now().UTC(),
		}
		if _, _, err := s.messages.Upsert(ctx, outbound); err != nil {
			s.log.Warn("auto-reply: falha ao registrar mensagem de saída",
				zap.String("instanceId", inst.ID),
				zap.Error(err),
			)
		}
	}

	entry := model.AutoReplyLog{
		InstanceID: inst.ID,
		ContactID:  contact.ID,
		Text:       text,
		SentAt:     s.now().UTC(),
	}
	if _, err := s.autoReplies.Create(ctx, entry); err != nil {
		return fail(fmt.Errorf("gravar log de envio: %w", err))
	}

	s.log.Info("auto-reply: enviado",
		zap.String("instanceId", inst.ID),
		zap.String("contactId", contact.ID),
	)

	return nil
}

// templateVars resolve os valores dos placeholders. O nome do cliente vem
// do cadastro do CRM quando o contato está vinculado.
func (s *Service) templateVars(ctx context.Context, contact model.Contact) TemplateVars {
	vars := TemplateVars{
		ContactName: contact.Name,
		Phone:       contact.Phone,
	}

	if contact.ClientID != "" {
		client, err := s.clients.GetByID(ctx, contact.ClientID)
		if err != nil {
			s.log.Warn("auto-reply: cliente vinculado não encontrado",
				zap.String("contactId", contact.ID),
				zap.String("clientId", contact.ClientID),
				zap.Error(err),
			)
		} else {
			vars.ClientName = client.Name
		}
	}

	return vars
}

// instanceLocation resolve o fuso horário da instância. Agenda é comparada
// sempre no fuso do negócio, nunca no relógio do servidor.
func (s *Service) instanceLocation(inst model.Instance) *time.Location {
	tz := inst.Timezone
	if tz == "" {
		tz = s.defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("auto-reply: fuso horário inválido, usando UTC",
			zap.String("instanceId", inst.ID),
			zap.String("timezone", tz),
		)
		return time.UTC
	}
	return loc
}
