package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// ---- fakes em memória -------------------------------------------------

type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]model.Instance // por ID
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: map[string]model.Instance{}}
}

func (r *fakeInstanceRepo) Create(ctx context.Context, inst model.Instance) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.ID] = inst
	return inst, nil
}

func (r *fakeInstanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	return inst, nil
}

func (r *fakeInstanceRepo) GetByExternalName(ctx context.Context, name string) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.ExternalName == name {
			return inst, nil
		}
	}
	return model.Instance{}, storage.ErrNotFound
}

func (r *fakeInstanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Instance
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out, nil
}

func (r *fakeInstanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[inst.ID]; !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	r.instances[inst.ID] = inst
	return inst, nil
}

func (r *fakeInstanceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.instances, id)
	return nil
}

type fakeContactRepo struct {
	mu       sync.Mutex
	seq      int
	contacts map[string]model.Contact // por ID
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: map[string]model.Contact{}}
}

func (r *fakeContactRepo) Upsert(ctx context.Context, c model.Contact) (model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.contacts {
		if existing.InstanceID == c.InstanceID && existing.RemoteJID == c.RemoteJID {
			if c.Phone != "" {
				existing.Phone = c.Phone
			}
			if c.Name != "" {
				existing.Name = c.Name
			}
			r.contacts[id] = existing
			return existing, nil
		}
	}
	r.seq++
	c.ID = fmt.Sprintf("contact-%d", r.seq)
	r.contacts[c.ID] = c
	return c, nil
}

func (r *fakeContactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return model.Contact{}, storage.ErrNotFound
	}
	return c, nil
}

func (r *fakeContactRepo) GetByRemoteJID(ctx context.Context, instanceID, jid string) (model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.InstanceID == instanceID && c.RemoteJID == jid {
			return c, nil
		}
	}
	return model.Contact{}, storage.ErrNotFound
}

func (r *fakeContactRepo) ListUnlinked(ctx context.Context, instanceID string, limit, offset int) ([]model.Contact, error) {
	return nil, nil
}

func (r *fakeContactRepo) CountByInstance(ctx context.Context, instanceID string) (int64, int64, error) {
	return 0, 0, nil
}

func (r *fakeContactRepo) SetClientLink(ctx context.Context, contactID, clientID string, ct model.ContactType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return storage.ErrNotFound
	}
	c.ClientID = clientID
	c.Type = ct
	if name != "" {
		c.Name = name
	}
	r.contacts[contactID] = c
	return nil
}

func (r *fakeContactRepo) TouchLastMessage(ctx context.Context, contactID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return storage.ErrNotFound
	}
	c.LastMessageAt = &at
	r.contacts[contactID] = c
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	seq      int
	messages map[string]model.Message // por instanceID|externalID
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[string]model.Message{}}
}

func msgKey(instanceID, externalID string) string {
	return instanceID + "|" + externalID
}

func (r *fakeMessageRepo) Upsert(ctx context.Context, m model.Message) (model.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := msgKey(m.InstanceID, m.ExternalID)
	if existing, ok := r.messages[key]; ok {
		return existing, false, nil
	}
	r.seq++
	m.ID = fmt.Sprintf("msg-%d", r.seq)
	r.messages[key] = m
	return m, true, nil
}

func (r *fakeMessageRepo) GetByExternalID(ctx context.Context, instanceID, externalID string) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[msgKey(instanceID, externalID)]
	if !ok {
		return model.Message{}, storage.ErrNotFound
	}
	return m, nil
}

func (r *fakeMessageRepo) UpdateStatusByExternalID(ctx context.Context, instanceID, externalID string, status model.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := msgKey(instanceID, externalID)
	m, ok := r.messages[key]
	if !ok {
		return storage.ErrNotFound
	}
	m.Status = status
	r.messages[key] = m
	return nil
}

func (r *fakeMessageRepo) ListByContact(ctx context.Context, contactID string, limit int) ([]model.Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]model.InstanceSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: map[string]model.InstanceSettings{}}
}

func (r *fakeSettingsRepo) GetByInstance(ctx context.Context, instanceID string) (model.InstanceSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[instanceID]
	if !ok {
		return model.InstanceSettings{}, storage.ErrNotFound
	}
	return s, nil
}

func (r *fakeSettingsRepo) Save(ctx context.Context, s model.InstanceSettings) (model.InstanceSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.InstanceID] = s
	return s, nil
}

type fakeAutoReplyRepo struct {
	mu   sync.Mutex
	logs []model.AutoReplyLog
}

func (r *fakeAutoReplyRepo) Create(ctx context.Context, entry model.AutoReplyLog) (model.AutoReplyLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = fmt.Sprintf("log-%d", len(r.logs)+1)
	r.logs = append(r.logs, entry)
	return entry, nil
}

func (r *fakeAutoReplyRepo) LastSince(ctx context.Context, instanceID, contactID string, since time.Time) (model.AutoReplyLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		entry := r.logs[i]
		if entry.InstanceID == instanceID && entry.ContactID == contactID && !entry.SentAt.Before(since) {
			return entry, nil
		}
	}
	return model.AutoReplyLog{}, storage.ErrNotFound
}

func (r *fakeAutoReplyRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

type fakeClientRepo struct {
	clients map[string]model.Client
}

func (r *fakeClientRepo) GetByID(ctx context.Context, id string) (model.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return model.Client{}, storage.ErrNotFound
	}
	return c, nil
}

func (r *fakeClientRepo) List(ctx context.Context) ([]model.Client, error) {
	var out []model.Client
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out, nil
}

type sentText struct {
	Instance string
	To       string
	Text     string
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentText
	err  error
}

func (g *fakeGateway) SendText(ctx context.Context, instanceName, to, text string) (SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return SendResult{}, g.err
	}
	g.sent = append(g.sent, sentText{Instance: instanceName, To: to, Text: text})
	return SendResult{MessageID: fmt.Sprintf("out-%d", len(g.sent)), Status: "PENDING"}, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

// ---- harness -----------------------------------------------------------

type testEnv struct {
	svc         *Service
	instances   *fakeInstanceRepo
	contacts    *fakeContactRepo
	messages    *fakeMessageRepo
	settings    *fakeSettingsRepo
	autoReplies *fakeAutoReplyRepo
	clients     *fakeClientRepo
	gateway     *fakeGateway
	clock       *time.Time
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	env := &testEnv{
		instances:   newFakeInstanceRepo(),
		contacts:    newFakeContactRepo(),
		messages:    newFakeMessageRepo(),
		settings:    newFakeSettingsRepo(),
		autoReplies: &fakeAutoReplyRepo{},
		clients:     &fakeClientRepo{clients: map[string]model.Client{}},
		gateway:     &fakeGateway{},
	}
	clock := now
	env.clock = &clock

	env.svc = NewService(
		env.instances, env.contacts, env.messages, env.settings,
		env.autoReplies, env.clients, env.gateway,
		zap.NewNop(),
		Options{
			Cooldown:           4 * time.Hour,
			DefaultCountryCode: "55",
			DefaultTimezone:    "UTC",
			Now:                func() time.Time { return *env.clock },
		},
	)
	return env
}

func (e *testEnv) addInstance(inst model.Instance) model.Instance {
	created, _ := e.instances.Create(context.Background(), inst)
	return created
}

func upsertEnvelope(instance, remoteJID, externalID, text string) Envelope {
	payload, _ := json.Marshal(map[string]any{
		"key": map[string]any{
			"remoteJid": remoteJID,
			"fromMe":    false,
			"id":        externalID,
		},
		"pushName":         "Maria",
		"messageType":      "conversation",
		"text":             text,
		"messageTimestamp": 1770000000,
	})
	return Envelope{Event: EventMessagesUpsert, Instance: instance, Payload: payload}
}

// Agenda comercial de segunda a sexta. Domingo fica de fora.
func weekdaySchedule() model.Schedule {
	s := model.Schedule{}
	for d := time.Monday; d <= time.Friday; d++ {
		s[d] = model.DaySchedule{Enabled: true, Start: "08:00", End: "18:00"}
	}
	return s
}

// 2026-03-01 é um domingo.
var sundayNoon = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---- testes ------------------------------------------------------------

func TestProcessWebhookEventInstanciaDesconhecida(t *testing.T) {
	env := newTestEnv(t, sundayNoon)

	err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("fantasma", "5511987654321@s.whatsapp.net", "m1", "oi"))
	if err != nil {
		t.Fatalf("instância desconhecida deve ser descartada sem erro, veio %v", err)
	}
	if env.messages.count() != 0 {
		t.Fatal("nenhuma mensagem deveria ser persistida")
	}
}

func TestProcessWebhookEventEventoDesconhecido(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event:    "PRESENCE_UPDATE",
		Instance: "loja",
		Payload:  json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("evento desconhecido deve ser ignorado sem erro, veio %v", err)
	}
}

func TestMessagesUpsertPersisteEDeduplica(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	envl := upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m1", "oi")
	if err := env.svc.ProcessWebhookEvent(context.Background(), envl); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	// Reentrega do mesmo evento.
	if err := env.svc.ProcessWebhookEvent(context.Background(), envl); err != nil {
		t.Fatalf("erro inesperado na reentrega: %v", err)
	}

	if got := env.messages.count(); got != 1 {
		t.Fatalf("reentrega não pode duplicar: esperava 1 mensagem, veio %d", got)
	}

	contact, err := env.contacts.GetByRemoteJID(context.Background(), "inst-1", "5511987654321@s.whatsapp.net")
	if err != nil {
		t.Fatalf("contato deveria ter sido sincronizado: %v", err)
	}
	if contact.Phone != "+5511987654321" {
		t.Fatalf("telefone do contato deveria vir do JID normalizado, veio %q", contact.Phone)
	}
	if contact.LastMessageAt == nil {
		t.Fatal("last_message_at deveria ser atualizado")
	}
}

func TestMessagesUpsertIgnoraFromMe(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	payload, _ := json.Marshal(map[string]any{
		"key": map[string]any{"remoteJid": "5511987654321@s.whatsapp.net", "fromMe": true, "id": "m1"},
		"messageType": "conversation",
		"text":        "eco da nossa resposta",
	})
	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventMessagesUpsert, Instance: "loja", Payload: payload,
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if env.messages.count() != 0 {
		t.Fatal("eco fromMe não pode ser persistido como entrada")
	}
}

func TestMessagesUpsertPayloadMalformado(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventMessagesUpsert, Instance: "loja", Payload: json.RawMessage(`"rabisco"`),
	})
	if err != nil {
		t.Fatalf("payload malformado deve ser descartado sem erro, veio %v", err)
	}
}

func TestAutoReplyForaDoHorario(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})
	env.clients.clients["cli-1"] = model.Client{ID: "cli-1", Name: "Maria Silva", Phone: "+5511987654321"}
	env.settings.Save(context.Background(), model.InstanceSettings{
		InstanceID:        inst.ID,
		AutoReplyEnabled:  true,
		AutoReplyTemplate: "Olá {nome_cliente}, voltamos às 08:00",
		Schedule:          weekdaySchedule(),
	})

	// Primeira mensagem cria o contato; vincula ao cliente e repete para
	// validar a renderização com o nome do CRM.
	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m1", "oi")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	if got := env.gateway.count(); got != 1 {
		t.Fatalf("domingo fora de agenda deveria disparar auto-reply, veio %d envios", got)
	}
	if got := env.autoReplies.count(); got != 1 {
		t.Fatalf("envio deveria ser registrado no log, veio %d", got)
	}
	// Sem vínculo de cliente, o placeholder cai para o pushName.
	if env.gateway.sent[0].Text != "Olá Maria, voltamos às 08:00" {
		t.Fatalf("texto renderizado inesperado: %q", env.gateway.sent[0].Text)
	}

	// Vincula ao cliente do CRM e envia outra mensagem bem depois.
	contact, _ := env.contacts.GetByRemoteJID(context.Background(), inst.ID, "5511987654321@s.whatsapp.net")
	env.contacts.SetClientLink(context.Background(), contact.ID, "cli-1", model.ContactTypeClient, "Maria Silva")
	*env.clock = sundayNoon.Add(5 * time.Hour)

	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m2", "alguém aí?")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if got := env.gateway.count(); got != 2 {
		t.Fatalf("após o cooldown deveria enviar de novo, veio %d envios", got)
	}
	if env.gateway.sent[1].Text != "Olá Maria Silva, voltamos às 08:00" {
		t.Fatalf("nome do cliente do CRM deveria prevalecer: %q", env.gateway.sent[1].Text)
	}

	// Mensagem de saída do auto-reply fica registrada como fromMe.
	outbound, err := env.messages.GetByExternalID(context.Background(), inst.ID, "out-1")
	if err != nil {
		t.Fatalf("mensagem de saída deveria ser registrada: %v", err)
	}
	if !outbound.FromMe || outbound.Status != model.MessageStatusSent {
		t.Fatalf("saída deveria ser fromMe com status sent, veio %+v", outbound)
	}
}

func TestAutoReplyCooldown(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})
	env.settings.Save(context.Background(), model.InstanceSettings{
		InstanceID:        inst.ID,
		AutoReplyEnabled:  true,
		AutoReplyTemplate: "Estamos fechados",
		Schedule:          weekdaySchedule(),
	})

	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m1", "oi")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	// 30 minutos depois, o mesmo contato insiste: cooldown segura.
	*env.clock = sundayNoon.Add(30 * time.Minute)
	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m2", "oi de novo")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if got := env.gateway.count(); got != 1 {
		t.Fatalf("cooldown deveria suprimir o segundo envio, veio %d", got)
	}

	// Contato diferente não compartilha cooldown.
	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511999990000@s.whatsapp.net", "m3", "olá")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if got := env.gateway.count(); got != 2 {
		t.Fatalf("cooldown é por contato, veio %d envios", got)
	}
}

func TestAutoReplyDentroDoHorario(t *testing.T) {
	// 2026-03-02 segunda 12:00, dentro da agenda.
	mondayNoon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, mondayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})
	env.settings.Save(context.Background(), model.InstanceSettings{
		InstanceID:        inst.ID,
		AutoReplyEnabled:  true,
		AutoReplyTemplate: "Estamos fechados",
		Schedule:          weekdaySchedule(),
	})

	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m1", "oi")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if env.gateway.count() != 0 {
		t.Fatal("dentro do horário não há resposta automática")
	}
	if env.messages.count() != 1 {
		t.Fatal("a mensagem de entrada ainda precisa ser persistida")
	}
}

func TestAutoReplyDesabilitadoOuSemConfiguracao(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	// Sem configuração salva.
	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m1", "oi")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if env.gateway.count() != 0 {
		t.Fatal("sem configuração não há envio")
	}

	// Configuração presente porém desabilitada.
	env.settings.Save(context.Background(), model.InstanceSettings{
		InstanceID:        "inst-1",
		AutoReplyEnabled:  false,
		AutoReplyTemplate: "Estamos fechados",
		Schedule:          weekdaySchedule(),
	})
	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m2", "oi")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if env.gateway.count() != 0 {
		t.Fatal("desabilitado não envia")
	}
}

func TestAutoReplyFalhaDoGatewayNaoDerrubaIngestao(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})
	env.settings.Save(context.Background(), model.InstanceSettings{
		InstanceID:        inst.ID,
		AutoReplyEnabled:  true,
		AutoReplyTemplate: "Estamos fechados",
		Schedule:          weekdaySchedule(),
	})
	env.gateway.err = errors.New("gateway indisponível")

	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m1", "oi")); err != nil {
		t.Fatalf("falha no auto-reply não pode propagar: %v", err)
	}
	if env.messages.count() != 1 {
		t.Fatal("mensagem de entrada deveria estar durável mesmo com gateway fora")
	}
	if env.autoReplies.count() != 0 {
		t.Fatal("envio que falhou não pode entrar no log")
	}
}

func TestMessagesUpdateStatusSoAvanca(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	if err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "5511987654321@s.whatsapp.net", "m1", "oi")); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	// Entrada persiste como delivered.

	update := func(status string) error {
		payload, _ := json.Marshal(map[string]any{
			"key":    map[string]any{"remoteJid": "5511987654321@s.whatsapp.net", "id": "m1"},
			"status": status,
		})
		return env.svc.ProcessWebhookEvent(context.Background(), Envelope{
			Event: EventMessagesUpdate, Instance: "loja", Payload: payload,
		})
	}

	// Ack atrasado mais fraco não regride.
	if err := update("SERVER_ACK"); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	m, _ := env.messages.GetByExternalID(context.Background(), inst.ID, "m1")
	if m.Status != model.MessageStatusDelivered {
		t.Fatalf("ack atrasado não pode regredir o status, veio %v", m.Status)
	}

	// Ack mais forte avança.
	if err := update("READ"); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	m, _ = env.messages.GetByExternalID(context.Background(), inst.ID, "m1")
	if m.Status != model.MessageStatusRead {
		t.Fatalf("READ deveria avançar o status, veio %v", m.Status)
	}

	// Status para mensagem desconhecida é silencioso.
	payload, _ := json.Marshal(map[string]any{
		"key":    map[string]any{"remoteJid": "x@s.whatsapp.net", "id": "inexistente"},
		"status": "READ",
	})
	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventMessagesUpdate, Instance: "loja", Payload: payload,
	})
	if err != nil {
		t.Fatalf("status órfão deve ser ignorado, veio %v", err)
	}
}

func TestConnectionUpdateViaEvento(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Status: model.InstanceStatusConnecting, Timezone: "UTC"})

	payload, _ := json.Marshal(map[string]any{"state": "open", "wuid": "5511222223333@s.whatsapp.net"})
	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventConnectionUpdate, Instance: "loja", Payload: payload,
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	inst, _ := env.instances.GetByID(context.Background(), "inst-1")
	if inst.Status != model.InstanceStatusConnected {
		t.Fatalf("esperava connected, veio %v", inst.Status)
	}
	if inst.PhoneNumber != "+5511222223333" {
		t.Fatalf("wuid deveria virar telefone normalizado, veio %q", inst.PhoneNumber)
	}

	// Evento transitório de desconexão durante pareamento não rebaixa.
	inst.Status = model.InstanceStatusQRCode
	env.instances.Update(context.Background(), inst)
	payload, _ = json.Marshal(map[string]any{"state": "close"})
	if err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventConnectionUpdate, Instance: "loja", Payload: payload,
	}); err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	inst, _ = env.instances.GetByID(context.Background(), "inst-1")
	if inst.Status != model.InstanceStatusQRCode {
		t.Fatalf("desconexão transitória não pode abortar pareamento, veio %v", inst.Status)
	}
}

func TestQRCodeUpdated(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	payload, _ := json.Marshal(map[string]any{"qrcode": map[string]any{"code": "2@abcdef"}})
	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventQRCodeUpdated, Instance: "loja", Payload: payload,
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	inst, _ := env.instances.GetByID(context.Background(), "inst-1")
	if inst.Status != model.InstanceStatusQRCode || inst.QRCode != "2@abcdef" {
		t.Fatalf("QR deveria ser armazenado com status qr_code, veio %+v", inst)
	}
	if inst.QRUpdatedAt == nil {
		t.Fatal("QRUpdatedAt deveria ser carimbado")
	}
}

func TestContactsUpsert(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	payload := json.RawMessage(`[
		{"remoteJid": "5511987654321@s.whatsapp.net", "pushName": "Maria"},
		{"remoteJid": "5511999990000@s.whatsapp.net", "pushName": "João"}
	]`)
	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventContactsUpsert, Instance: "loja", Payload: payload,
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	c, err := env.contacts.GetByRemoteJID(context.Background(), "inst-1", "5511999990000@s.whatsapp.net")
	if err != nil {
		t.Fatalf("contato do lote deveria existir: %v", err)
	}
	if c.Name != "João" || c.Phone != "+5511999990000" {
		t.Fatalf("contato sincronizado incorreto: %+v", c)
	}
}

func TestAutoReplyErrorCarregaContexto(t *testing.T) {
	inner := errors.New("falha qualquer")
	err := &AutoReplyError{InstanceID: "inst-1", ContactID: "contact-9", Err: inner}

	if !errors.Is(err, inner) {
		t.Fatal("Unwrap deveria expor o erro original")
	}
	msg := err.Error()
	if msg == "" || !errors.Is(err, inner) {
		t.Fatalf("mensagem vazia: %q", msg)
	}
}

func TestMensagemDeGrupoIgnoradaComIgnoreGroups(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})
	env.settings.Save(context.Background(), model.InstanceSettings{
		InstanceID:        inst.ID,
		IgnoreGroups:      true,
		AutoReplyEnabled:  true,
		AutoReplyTemplate: "Estamos fechados",
		Schedule:          weekdaySchedule(),
	})

	err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "120363123456789012@g.us", "g1", "mensagem no grupo"))
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	if got := env.messages.count(); got != 0 {
		t.Fatalf("mensagem de grupo não deveria ser persistida, veio %d", got)
	}
	if got := env.gateway.count(); got != 0 {
		t.Fatalf("grupo não deveria disparar auto-reply, veio %d envios", got)
	}
	if _, err := env.contacts.GetByRemoteJID(context.Background(), inst.ID, "120363123456789012@g.us"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("contato do grupo não deveria ser criado: %v", err)
	}
}

func TestAutoReplyNaoEnviaParaContatoSemTelefone(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})
	env.settings.Save(context.Background(), model.InstanceSettings{
		InstanceID:        inst.ID,
		AutoReplyEnabled:  true,
		AutoReplyTemplate: "Estamos fechados",
		Schedule:          weekdaySchedule(),
	})

	// Sem IgnoreGroups a mensagem do grupo é persistida, mas o JID de grupo
	// não rende telefone e o envio precisa ser suprimido.
	err := env.svc.ProcessWebhookEvent(context.Background(), upsertEnvelope("loja", "120363123456789012@g.us", "g1", "mensagem no grupo"))
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	if got := env.messages.count(); got != 1 {
		t.Fatalf("mensagem deveria ser persistida, veio %d", got)
	}
	if got := env.gateway.count(); got != 0 {
		t.Fatalf("contato sem telefone não deveria receber envio, veio %d", got)
	}
	if got := env.autoReplies.count(); got != 0 {
		t.Fatalf("nada deveria entrar no log de auto-reply, veio %d", got)
	}
}

func TestMensagemSemCarimboUsaRelogioDoServico(t *testing.T) {
	env := newTestEnv(t, sundayNoon)
	inst := env.addInstance(model.Instance{ID: "inst-1", ExternalName: "loja", Timezone: "UTC"})

	payload, _ := json.Marshal(map[string]any{
		"key": map[string]any{
			"remoteJid": "5511987654321@s.whatsapp.net",
			"fromMe":    false,
			"id":        "m1",
		},
		"messageType":      "conversation",
		"text":             "oi",
		"messageTimestamp": 0,
	})
	err := env.svc.ProcessWebhookEvent(context.Background(), Envelope{
		Event: EventMessagesUpsert, Instance: "loja", Payload: payload,
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}

	stored, err := env.messages.GetByExternalID(context.Background(), inst.ID, "m1")
	if err != nil {
		t.Fatalf("mensagem deveria existir: %v", err)
	}
	if !stored.Timestamp.Equal(sundayNoon) {
		t.Fatalf("evento sem carimbo deveria usar o relógio do serviço: %v", stored.Timestamp)
	}
}
