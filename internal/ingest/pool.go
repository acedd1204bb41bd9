package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/pkg/queue"
	"github.com/zapgestor/zapgestor/internal/service/whatsapp"
)

// Pool consome a fila de eventos de webhook e os entrega ao serviço de
// mensagens. Vários workers rodam em paralelo; a ordenação entre eventos
// de instâncias diferentes não é garantida e não precisa ser.
type Pool struct {
	queue   queue.Queue
	service *whatsapp.Service
	log     *zap.Logger

	numWorkers int
	taskChan   chan *queue.Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewPool(q queue.Queue, service *whatsapp.Service, log *zap.Logger, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}

	return &Pool{
		queue:      q,
		service:    service,
		log:        log,
		numWorkers: numWorkers,
		taskChan:   make(chan *queue.Job, numWorkers*2),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info("ingest pool: iniciando", zap.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.wg.Add(1)
	go p.runDispatcher()

	p.log.Info("ingest pool: iniciada com sucesso")
}

func (p *Pool) Stop() {
	p.log.Info("ingest pool: encerrando")
	p.cancel()
	p.wg.Wait()
	close(p.taskChan)
	p.log.Info("ingest pool: encerrada")
}

func (p *Pool) runDispatcher() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			job, err := p.queue.Dequeue(p.ctx, 1*time.Second)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.log.Error("ingest pool: erro ao desenfileirar", zap.Error(err))
				continue
			}

			if job == nil {
				continue
			}

			select {
			case p.taskChan <- job:
			case <-p.ctx.Done():
				return
			case <-time.After(5 * time.Second):
				p.log.Warn("ingest pool: taskChan cheio, descartando evento", zap.String("jobId", job.ID))
			}
		}
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	p.log.Info("ingest pool: worker iniciado", zap.Int("workerId", id))

	for {
		select {
		case <-p.ctx.Done():
			p.log.Info("ingest pool: worker encerrando", zap.Int("workerId", id))
			return
		case job := <-p.taskChan:
			if job == nil {
				return
			}
			p.processJob(id, job)
		}
	}
}

func (p *Pool) processJob(workerID int, job *queue.Job) {
	p.log.Debug("ingest pool: processando evento",
		zap.Int("workerId", workerID),
		zap.String("jobId", job.ID),
		zap.String("evento", job.Event),
	)

	env := whatsapp.Envelope{
		Event:    job.Event,
		Instance: job.Instance,
		Payload:  job.Payload,
	}

	if err := p.service.ProcessWebhookEvent(p.ctx, env); err != nil {
		// Erros de processamento não reencadeiam o evento: o gateway já
		// recebeu 200 e o evento seguinte traz o estado mais novo.
		p.log.Error("ingest pool: falha ao processar evento",
			zap.Int("workerId", workerID),
			zap.String("jobId", job.ID),
			zap.String("evento", job.Event),
			zap.String("instancia", job.Instance),
			zap.Error(err),
		)
		return
	}

	p.log.Debug("ingest pool: evento processado",
		zap.Int("workerId", workerID),
		zap.String("jobId", job.ID),
	)
}
