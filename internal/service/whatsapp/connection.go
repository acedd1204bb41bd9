package whatsapp

import (
	"time"

	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// applyConnectionTransition aplica um evento de conexão sobre a instância,
// respeitando as duas guardas contra eventos fora de ordem do gateway:
//
//  1. "disconnected" chegando enquanto o estado atual é qr_code é suprimido:
//     o gateway emite desconexões transitórias enquanto o QR aguarda leitura,
//     e rebaixar o estado abortaria um pareamento em andamento. Apenas o
//     last_seen é atualizado.
//  2. "connecting" chegando sobre connected ou qr_code é suprimido por
//     completo: connecting é mais fraco que ambos e nunca pode regredi-los.
//
// Retorna a instância resultante e se houve mudança a persistir.
func applyConnectionTransition(inst model.Instance, next model.InstanceStatus, phoneNumber string, now time.Time) (model.Instance, bool) {
	if next == model.InstanceStatusDisconnected && inst.Status == model.InstanceStatusQRCode {
		inst.LastSeenAt = &now
		return inst, true
	}

	if next == model.InstanceStatusConnecting &&
		(inst.Status == model.InstanceStatusConnected || inst.Status == model.InstanceStatusQRCode) {
		return inst, false
	}

	inst.Status = next
	inst.LastSeenAt = &now

	if next == model.InstanceStatusConnected {
		inst.ConnectedAt = &now
		if phoneNumber != "" {
			inst.PhoneNumber = phoneNumber
		}
	}

	return inst, true
}
