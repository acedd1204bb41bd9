package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job é um evento de webhook recebido do gateway, ainda não processado.
// O payload é guardado cru para que a fila não precise conhecer o formato
// de cada tipo de evento.
type Job struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Instance   string          `json:"instance"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}
