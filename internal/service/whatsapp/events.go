package whatsapp

import (
	"encoding/json"

	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// Eventos reconhecidos do gateway Evolution.
const (
	EventMessagesUpsert   = "MESSAGES_UPSERT"
	EventMessagesUpdate   = "MESSAGES_UPDATE"
	EventConnectionUpdate = "CONNECTION_UPDATE"
	EventQRCodeUpdated    = "QRCODE_UPDATED"
	EventContactsUpsert   = "CONTACTS_UPSERT"
)

// Envelope é a notificação crua postada pelo gateway. Instance carrega o
// nome externo da instância; Payload é decodificado por evento no despacho.
type Envelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Payload  json.RawMessage `json:"data"`
}

type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type EventMedia struct {
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileLength"`
}

type EventMessage struct {
	Key       MessageKey  `json:"key"`
	PushName  string      `json:"pushName"`
	Type      string      `json:"messageType"`
	Text      string      `json:"text"`
	Media     *EventMedia `json:"media"`
	QuotedID  string      `json:"quotedId"`
	Timestamp int64       `json:"messageTimestamp"`
}

// O gateway ora envia uma mensagem única, ora um lote. Aceitamos os dois
// formatos e normalizamos para lista.
type MessagesUpsertPayload struct {
	Messages []EventMessage `json:"messages"`
}

func (p *MessagesUpsertPayload) UnmarshalJSON(data []byte) error {
	type alias MessagesUpsertPayload
	var batch alias
	if err := json.Unmarshal(data, &batch); err == nil && len(batch.Messages) > 0 {
		p.Messages = batch.Messages
		return nil
	}

	var single EventMessage
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single.Key.ID != "" {
		p.Messages = []EventMessage{single}
	}
	return nil
}

type MessageStatusUpdate struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status"`
}

type MessagesUpdatePayload struct {
	Updates []MessageStatusUpdate `json:"updates"`
}

func (p *MessagesUpdatePayload) UnmarshalJSON(data []byte) error {
	type alias MessagesUpdatePayload
	var batch alias
	if err := json.Unmarshal(data, &batch); err == nil && len(batch.Updates) > 0 {
		p.Updates = batch.Updates
		return nil
	}

	var single MessageStatusUpdate
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single.Key.ID != "" {
		p.Updates = []MessageStatusUpdate{single}
	}
	return nil
}

type ConnectionUpdatePayload struct {
	State       string `json:"state"`
	PhoneNumber string `json:"wuid"`
}

type QRCodeUpdatedPayload struct {
	QRCode struct {
		Code   string `json:"code"`
		Base64 string `json:"base64"`
	} `json:"qrcode"`
}

type EventContact struct {
	RemoteJID     string `json:"remoteJid"`
	PushName      string `json:"pushName"`
	ProfilePicURL string `json:"profilePicUrl"`
}

type ContactsUpsertPayload struct {
	Contacts []EventContact `json:"contacts"`
}

func (p *ContactsUpsertPayload) UnmarshalJSON(data []byte) error {
	type alias ContactsUpsertPayload
	var batch alias
	if err := json.Unmarshal(data, &batch); err == nil && len(batch.Contacts) > 0 {
		p.Contacts = batch.Contacts
		return nil
	}

	var list []EventContact
	if err := json.Unmarshal(data, &list); err == nil {
		p.Contacts = list
		return nil
	}

	var single EventContact
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single.RemoteJID != "" {
		p.Contacts = []EventContact{single}
	}
	return nil
}

// mapConnectionState traduz o estado reportado pelo gateway para o enum
// local. Aceita tanto os nomes do Evolution quanto os nossos.
func mapConnectionState(state string) (model.InstanceStatus, bool) {
	switch state {
	case "open", "connected":
		return model.InstanceStatusConnected, true
	case "connecting":
		return model.InstanceStatusConnecting, true
	case "close", "closed", "disconnected":
		return model.InstanceStatusDisconnected, true
	case "qr", "qr_code":
		return model.InstanceStatusQRCode, true
	}
	return "", false
}

// mapMessageStatus traduz os acks do gateway para o enum local.
func mapMessageStatus(status string) (model.MessageStatus, bool) {
	switch status {
	case "PENDING":
		return model.MessageStatusPending, true
	case "SERVER_ACK", "sent":
		return model.MessageStatusSent, true
	case "DELIVERY_ACK", "delivered":
		return model.MessageStatusDelivered, true
	case "READ", "read":
		return model.MessageStatusRead, true
	case "ERROR", "failed":
		return model.MessageStatusFailed, true
	}
	return "", false
}

// statusRank ordena os status de entrega: um ack nunca regride o anterior.
func statusRank(status model.MessageStatus) int {
	switch status {
	case model.MessageStatusPending:
		return 0
	case model.MessageStatusSent:
		return 1
	case model.MessageStatusDelivered:
		return 2
	case model.MessageStatusRead:
		return 3
	case model.MessageStatusFailed:
		return 4
	}
	return -1
}

func mapMessageType(raw string) model.MessageType {
	switch raw {
	case "conversation", "extendedTextMessage", "text":
		return model.MessageTypeText
	case "audioMessage", "audio":
		return model.MessageTypeAudio
	case "imageMessage", "image":
		return model.MessageTypeImage
	case "videoMessage", "video":
		return model.MessageTypeVideo
	case "documentMessage", "document":
		return model.MessageTypeDocument
	case "stickerMessage", "sticker":
		return model.MessageTypeSticker
	case "locationMessage", "location":
		return model.MessageTypeLocation
	case "contactMessage", "contact":
		return model.MessageTypeContact
	}
	return model.MessageTypeOther
}
