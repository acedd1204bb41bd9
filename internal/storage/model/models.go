package model

import "time"

type InstanceStatus string

const (
	InstanceStatusDisconnected InstanceStatus = "disconnected"
	InstanceStatusConnecting   InstanceStatus = "connecting"
	InstanceStatusConnected    InstanceStatus = "connected"
	InstanceStatusQRCode       InstanceStatus = "qr_code"
)

// Instance é um endpoint WhatsApp provisionado no gateway Evolution.
// ExternalName é o nome pelo qual o gateway identifica a instância nos webhooks.
type Instance struct {
	ID           string         `json:"id"`
	ExternalName string         `json:"externalName"`
	Token        string         `json:"-"`
	DisplayName  string         `json:"displayName"`
	Status       InstanceStatus `json:"status"`
	QRCode       string         `json:"qrCode,omitempty"`
	QRUpdatedAt  *time.Time     `json:"qrUpdatedAt,omitempty"`
	PhoneNumber  string         `json:"phoneNumber,omitempty"`
	Timezone     string         `json:"timezone,omitempty"`
	ConnectedAt  *time.Time     `json:"connectedAt,omitempty"`
	LastSeenAt   *time.Time     `json:"lastSeenAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

type ContactType string

const (
	ContactTypeClient   ContactType = "client"
	ContactTypeLead     ContactType = "lead"
	ContactTypeInternal ContactType = "internal"
	ContactTypeProvider ContactType = "provider"
	ContactTypeUnknown  ContactType = "unknown"
)

// Contact é uma identidade remota vinculada a uma instância.
// A chave natural é (InstanceID, RemoteJID).
type Contact struct {
	ID            string      `json:"id"`
	InstanceID    string      `json:"instanceId"`
	RemoteJID     string      `json:"remoteJid"`
	Phone         string      `json:"phone"`
	Name          string      `json:"name,omitempty"`
	ProfilePicURL string      `json:"profilePicUrl,omitempty"`
	Type          ContactType `json:"type"`
	ClientID      string      `json:"clientId,omitempty"`
	LastMessageAt *time.Time  `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
	MessageTypeOther    MessageType = "other"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Message é uma unidade de mensagem recebida ou enviada.
// ExternalID é único por instância e serve como chave de idempotência.
type Message struct {
	ID         string        `json:"id"`
	InstanceID string        `json:"instanceId"`
	ContactID  string        `json:"contactId"`
	ExternalID string        `json:"externalId"`
	FromMe     bool          `json:"fromMe"`
	Type       MessageType   `json:"type"`
	Text       string        `json:"text,omitempty"`
	MediaURL   string        `json:"mediaUrl,omitempty"`
	MediaMime  string        `json:"mediaMime,omitempty"`
	MediaSize  int64         `json:"mediaSize,omitempty"`
	MediaName  string        `json:"mediaName,omitempty"`
	QuotedID   string        `json:"quotedId,omitempty"`
	Status     MessageStatus `json:"status"`
	Timestamp  time.Time     `json:"timestamp"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// InstanceSettings concentra a configuração por instância, incluindo a
// resposta automática fora do horário comercial.
type InstanceSettings struct {
	InstanceID        string    `json:"instanceId"`
	RejectCalls       bool      `json:"rejectCalls"`
	IgnoreGroups      bool      `json:"ignoreGroups"`
	SendReadReceipts  bool      `json:"sendReadReceipts"`
	AutoReplyEnabled  bool      `json:"autoReplyEnabled"`
	AutoReplyTemplate string    `json:"autoReplyTemplate,omitempty"`
	Schedule          Schedule  `json:"schedule"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// DaySchedule define a janela de atendimento de um dia da semana.
// End menor que Start indica janela que atravessa a meia-noite (ex: 22:00-06:00).
type DaySchedule struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Schedule mapeia time.Weekday (0=domingo) para a janela do dia.
type Schedule map[time.Weekday]DaySchedule

// AutoReplyLog registra cada resposta automática enviada. Append-only:
// a única consulta é "houve envio para este contato dentro da janela?".
type AutoReplyLog struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instanceId"`
	ContactID  string    `json:"contactId"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

// Client é o cadastro de cliente do CRM. Somente leitura por este serviço;
// o vínculo acontece gravando Contact.ClientID.
type Client struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
