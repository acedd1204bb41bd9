package storage

import (
	"context"
	"errors"
	"time"

	"github.com/zapgestor/zapgestor/internal/storage/model"
)

var ErrNotFound = errors.New("not found")

type InstanceRepository interface {
	Create(ctx context.Context, instance model.Instance) (model.Instance, error)
	GetByID(ctx context.Context, id string) (model.Instance, error)
	GetByExternalName(ctx context.Context, externalName string) (model.Instance, error)
	List(ctx context.Context) ([]model.Instance, error)
	Update(ctx context.Context, instance model.Instance) (model.Instance, error)
	Delete(ctx context.Context, id string) error
}

type ContactRepository interface {
	// Upsert insere ou atualiza pelo par (instance_id, remote_jid).
	Upsert(ctx context.Context, contact model.Contact) (model.Contact, error)
	GetByID(ctx context.Context, id string) (model.Contact, error)
	GetByRemoteJID(ctx context.Context, instanceID, remoteJID string) (model.Contact, error)
	// ListUnlinked retorna contatos sem vínculo de cliente e com telefone
	// preenchido, paginados para o passo de reconciliação.
	ListUnlinked(ctx context.Context, instanceID string, limit, offset int) ([]model.Contact, error)
	CountByInstance(ctx context.Context, instanceID string) (total int64, linked int64, err error)
	SetClientLink(ctx context.Context, contactID, clientID string, contactType model.ContactType, name string) error
	TouchLastMessage(ctx context.Context, contactID string, at time.Time) error
}

type MessageRepository interface {
	// Upsert usa (instance_id, external_id) como chave de idempotência:
	// reentrega do mesmo evento não duplica a mensagem.
	Upsert(ctx context.Context, message model.Message) (model.Message, bool, error)
	GetByExternalID(ctx context.Context, instanceID, externalID string) (model.Message, error)
	UpdateStatusByExternalID(ctx context.Context, instanceID, externalID string, status model.MessageStatus) error
	ListByContact(ctx context.Context, contactID string, limit int) ([]model.Message, error)
}

type SettingsRepository interface {
	GetByInstance(ctx context.Context, instanceID string) (model.InstanceSettings, error)
	Save(ctx context.Context, settings model.InstanceSettings) (model.InstanceSettings, error)
}

type AutoReplyLogRepository interface {
	Create(ctx context.Context, entry model.AutoReplyLog) (model.AutoReplyLog, error)
	// LastSince retorna o envio mais recente para o par (instância, contato)
	// a partir do instante informado. ErrNotFound quando não houve envio.
	LastSince(ctx context.Context, instanceID, contactID string, since time.Time) (model.AutoReplyLog, error)
}

type ClientRepository interface {
	GetByID(ctx context.Context, id string) (model.Client, error)
	List(ctx context.Context) ([]model.Client, error)
}
