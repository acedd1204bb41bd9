// Package matcher reconcilia contatos WhatsApp com o cadastro de clientes
// do CRM por igualdade de telefone normalizado.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/phone"
	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

type Service struct {
	contacts storage.ContactRepository
	clients  storage.ClientRepository
	log      *zap.Logger

	defaultCC  string
	batchSize  int
	batchDelay time.Duration
	maxRetries int
}

type Config struct {
	DefaultCountryCode string
	BatchSize          int
	BatchDelay         time.Duration
	MaxRetries         int
}

func NewService(contacts storage.ContactRepository, clients storage.ClientRepository, log *zap.Logger, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 100 * time.Millisecond
	}
	if cfg.DefaultCountryCode == "" {
		cfg.DefaultCountryCode = "55"
	}
	return &Service{
		contacts:   contacts,
		clients:    clients,
		log:        log,
		defaultCC:  cfg.DefaultCountryCode,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		maxRetries: cfg.MaxRetries,
	}
}

// MatchByPhone procura um cliente cujo telefone, normalizado, seja igual ao
// informado. Igualdade estrita: telefone armazenado no CRM nunca é assumido
// como já normalizado. Retorna false quando não há correspondência.
func (s *Service) MatchByPhone(ctx context.Context, rawPhone string) (model.Client, bool, error) {
	if _, err := phone.Normalize(rawPhone, s.defaultCC); err != nil {
		return model.Client{}, false, nil
	}

	roster, err := s.clients.List(ctx)
	if err != nil {
		return model.Client{}, false, fmt.Errorf("matcher: listar clientes: %w", err)
	}

	for _, client := range roster {
		if phone.Equal(client.Phone, rawPhone, s.defaultCC) {
			return client, true, nil
		}
	}

	return model.Client{}, false, nil
}

// MatchOne tenta vincular um único contato. Operação idempotente: contato
// já vinculado retorna false sem erro.
func (s *Service) MatchOne(ctx context.Context, contactID string) (bool, error) {
	contact, err := s.contacts.GetByID(ctx, contactID)
	if err != nil {
		return false, fmt.Errorf("matcher: buscar contato %s: %w", contactID, err)
	}

	return s.matchContact(ctx, contact)
}

func (s *Service) matchContact(ctx context.Context, contact model.Contact) (bool, error) {
	if contact.ClientID != "" {
		return false, nil
	}
	if contact.Phone == "" {
		return false, nil
	}

	client, found, err := s.MatchByPhone(ctx, contact.Phone)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	// Nome do CRM só preenche contato sem nome; pushName existente prevalece.
	name := ""
	if contact.Name == "" {
		name = client.Name
	}

	if err := s.contacts.SetClientLink(ctx, contact.ID, client.ID, model.ContactTypeClient, name); err != nil {
		return false, fmt.Errorf("matcher: vincular contato %s: %w", contact.ID, err)
	}

	s.log.Info("matcher: contato vinculado a cliente",
		zap.String("contactId", contact.ID),
		zap.String("clientId", client.ID),
	)

	return true, nil
}

type Options struct {
	// InstanceID restringe o passo a uma instância; vazio percorre todas.
	InstanceID string
	BatchSize  int
	BatchDelay time.Duration
	MaxRetries int
}

// LockKey devolve a chave do lock distribuído para o escopo do passo.
// O passo global usa uma chave própria; passos por instância não disputam
// entre si.
func LockKey(instanceID string) string {
	if instanceID == "" {
		return "matching:lock:_all"
	}
	return "matching:lock:" + instanceID
}

type ItemError struct {
	ContactID string `json:"contactId"`
	Error     string `json:"error"`
}

type Result struct {
	MatchedCount    int           `json:"matchedCount"`
	TotalProcessed  int           `json:"totalProcessed"`
	Errors          []ItemError   `json:"errors"`
	ExecutionTimeMs int64         `json:"executionTimeMs"`
	ExecutionTime   time.Duration `json:"-"`
}

// RunMatchingPass percorre todos os contatos sem vínculo e com telefone,
// em lotes de tamanho fixo com pausa entre lotes para aliviar o cadastro.
// Falha em um contato entra na lista de erros e não aborta o passo.
// Seguro para rodar em paralelo com o tráfego de webhooks: cada vínculo é
// idempotente por contato.
func (s *Service) RunMatchingPass(ctx context.Context, opts Options) (Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	delay := opts.BatchDelay
	if delay <= 0 {
		delay = s.batchDelay
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = s.maxRetries
	}

	start := time.Now()
	result := Result{Errors: []ItemError{}}
	offset := 0

	for {
		batch, err := s.contacts.ListUnlinked(ctx, opts.InstanceID, batchSize, offset)
		if err != nil {
			return result, fmt.Errorf("matcher: listar contatos sem vínculo: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		matchedInBatch := 0
		for _, contact := range batch {
			matched, err := s.matchWithRetry(ctx, contact, retries)
			result.TotalProcessed++
			if err != nil {
				result.Errors = append(result.Errors, ItemError{ContactID: contact.ID, Error: err.Error()})
				s.log.Warn("matcher: falha ao processar contato",
					zap.String("contactId", contact.ID),
					zap.Error(err),
				)
				continue
			}
			if matched {
				result.MatchedCount++
				matchedInBatch++
			}
		}

		// Contatos vinculados saem do conjunto "sem vínculo"; o offset
		// avança apenas pelos que permaneceram.
		offset += len(batch) - matchedInBatch

		if len(batch) < batchSize {
			break
		}

		select {
		case <-ctx.Done():
			result.ExecutionTime = time.Since(start)
			result.ExecutionTimeMs = result.ExecutionTime.Milliseconds()
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}

	result.ExecutionTime = time.Since(start)
	result.ExecutionTimeMs = result.ExecutionTime.Milliseconds()

	s.log.Info("matcher: passo de reconciliação concluído",
		zap.Int("matched", result.MatchedCount),
		zap.Int("processed", result.TotalProcessed),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", result.ExecutionTime),
	)

	return result, nil
}

func (s *Service) matchWithRetry(ctx context.Context, contact model.Contact, retries int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		matched, err := s.matchContact(ctx, contact)
		if err == nil {
			return matched, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		lastErr = err
	}
	return false, lastErr
}

type Stats struct {
	TotalContacts      int64   `json:"totalContacts"`
	MatchedContacts    int64   `json:"matchedContacts"`
	UnmatchedContacts  int64   `json:"unmatchedContacts"`
	MatchingPercentage float64 `json:"matchingPercentage"`
}

// GetStats é o diagnóstico somente leitura da cobertura de vínculos.
func (s *Service) GetStats(ctx context.Context, instanceID string) (Stats, error) {
	total, linked, err := s.contacts.CountByInstance(ctx, instanceID)
	if err != nil {
		return Stats{}, fmt.Errorf("matcher: contar contatos: %w", err)
	}

	stats := Stats{
		TotalContacts:     total,
		MatchedContacts:   linked,
		UnmatchedContacts: total - linked,
	}
	if total > 0 {
		stats.MatchingPercentage = float64(linked) / float64(total) * 100
	}
	return stats, nil
}
