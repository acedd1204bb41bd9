package whatsapp

import (
	"testing"
	"time"

	"github.com/zapgestor/zapgestor/internal/storage/model"
)

func TestConnectionTransitionNormal(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	inst := model.Instance{Status: model.InstanceStatusDisconnected}

	got, changed := applyConnectionTransition(inst, model.InstanceStatusConnecting, "", now)
	if !changed || got.Status != model.InstanceStatusConnecting {
		t.Fatalf("disconnected -> connecting deveria aplicar, veio %v/%v", got.Status, changed)
	}

	got, changed = applyConnectionTransition(got, model.InstanceStatusConnected, "+5511987654321", now)
	if !changed || got.Status != model.InstanceStatusConnected {
		t.Fatalf("connecting -> connected deveria aplicar, veio %v/%v", got.Status, changed)
	}
	if got.ConnectedAt == nil || !got.ConnectedAt.Equal(now) {
		t.Fatalf("connected deveria carimbar ConnectedAt, veio %v", got.ConnectedAt)
	}
	if got.PhoneNumber != "+5511987654321" {
		t.Fatalf("connected deveria gravar o telefone, veio %q", got.PhoneNumber)
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(now) {
		t.Fatalf("transição aplicada deveria atualizar LastSeenAt, veio %v", got.LastSeenAt)
	}
}

func TestConnectionTransitionDisconnectedDuranteQR(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	inst := model.Instance{Status: model.InstanceStatusQRCode}

	got, changed := applyConnectionTransition(inst, model.InstanceStatusDisconnected, "", now)
	if got.Status != model.InstanceStatusQRCode {
		t.Fatalf("disconnected durante qr_code não pode rebaixar o estado, veio %v", got.Status)
	}
	if !changed {
		t.Fatal("a supressão ainda atualiza LastSeenAt e precisa persistir")
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(now) {
		t.Fatalf("LastSeenAt deveria ser atualizado, veio %v", got.LastSeenAt)
	}
}

func TestConnectionTransitionConnectingSuprimido(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for _, status := range []model.InstanceStatus{model.InstanceStatusConnected, model.InstanceStatusQRCode} {
		inst := model.Instance{Status: status}
		got, changed := applyConnectionTransition(inst, model.InstanceStatusConnecting, "", now)
		if changed {
			t.Fatalf("connecting sobre %v deveria ser suprimido por completo", status)
		}
		if got.Status != status {
			t.Fatalf("estado não pode mudar: %v -> %v", status, got.Status)
		}
		if got.LastSeenAt != nil {
			t.Fatal("supressão total não atualiza LastSeenAt")
		}
	}
}

func TestConnectionTransitionDisconnectedNormal(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	inst := model.Instance{Status: model.InstanceStatusConnected}

	got, changed := applyConnectionTransition(inst, model.InstanceStatusDisconnected, "", now)
	if !changed || got.Status != model.InstanceStatusDisconnected {
		t.Fatalf("connected -> disconnected deveria aplicar, veio %v/%v", got.Status, changed)
	}
}
