// Package evolution implementa o cliente HTTP do gateway Evolution API,
// responsável pelos envios de mensagem e pelo ciclo de conexão das
// instâncias WhatsApp.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zapgestor/zapgestor/internal/config"
)

// APIError carrega o status HTTP retornado pelo gateway. O status decide a
// elegibilidade de retry: 5xx e 429 são transitórios, demais 4xx são
// terminais.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("evolution: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("evolution: status %d", e.StatusCode)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	sendMaxRetries    int
	sendBaseDelay     time.Duration
	sendBackoffFactor float64
	connectMaxRetries int
}

// New valida a configuração e constrói o cliente. Configuração ausente ou
// URL malformada falham aqui, antes de qualquer tráfego de webhook.
func New(cfg config.GatewayConfig, log *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("evolution: EVOLUTION_BASE_URL não configurada")
	}
	parsed, err := url.Parse(base)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("evolution: EVOLUTION_BASE_URL inválida: %q", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("evolution: EVOLUTION_API_KEY não configurada")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "evolution",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("evolution: circuit breaker mudou de estado",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	ratePerSecond := cfg.SendRatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}

	factor := cfg.SendBackoffFactor
	if factor < 1 {
		factor = 2
	}
	baseDelay := cfg.SendBaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}

	return &Client{
		baseURL:           base,
		apiKey:            cfg.APIKey,
		http:              &http.Client{Timeout: timeout},
		log:               log,
		breaker:           breaker,
		limiter:           rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		sendMaxRetries:    cfg.SendMaxRetries,
		sendBaseDelay:     baseDelay,
		sendBackoffFactor: factor,
		connectMaxRetries: cfg.ConnectMaxRetries,
	}, nil
}

type SendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// SendText envia uma mensagem de texto pela instância informada. Apenas
// falhas transitórias (5xx, 429, rede) são retentadas, com backoff
// exponencial; o breaker protege o gateway degradado.
func (c *Client) SendText(ctx context.Context, instanceName, to, text string) (SendTextResponse, error) {
	body := map[string]any{
		"number": strings.TrimPrefix(to, "+"),
		"text":   text,
	}

	var out SendTextResponse
	err := c.doWithRetry(ctx, http.MethodPost,
		"/message/sendText/"+url.PathEscape(instanceName),
		body, &out, c.sendMaxRetries)
	if err != nil {
		return SendTextResponse{}, err
	}
	return out, nil
}

type ConnectResponse struct {
	Code   string `json:"code"`
	Base64 string `json:"base64"`
}

// Connect inicia o pareamento da instância e retorna o payload de QR.
func (c *Client) Connect(ctx context.Context, instanceName string) (ConnectResponse, error) {
	var out ConnectResponse
	err := c.doWithRetry(ctx, http.MethodGet,
		"/instance/connect/"+url.PathEscape(instanceName),
		nil, &out, c.connectMaxRetries)
	if err != nil {
		return ConnectResponse{}, err
	}
	return out, nil
}

type connectionStateResponse struct {
	Instance struct {
		State string `json:"state"`
	} `json:"instance"`
}

// GetConnectionState consulta o estado corrente da instância no gateway.
func (c *Client) GetConnectionState(ctx context.Context, instanceName string) (string, error) {
	var out connectionStateResponse
	err := c.doWithRetry(ctx, http.MethodGet,
		"/instance/connectionState/"+url.PathEscape(instanceName),
		nil, &out, c.connectMaxRetries)
	if err != nil {
		return "", err
	}
	return out.Instance.State, nil
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body any, out any, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := Backoff(attempt, c.sendBaseDelay, c.sendBackoffFactor)
			c.log.Info("evolution: retry",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.do(ctx, method, path, body, out)
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Breaker aberto: falha rápida, sem consumir tentativas contra
			// um gateway sabidamente degradado.
			return err
		}

		lastErr = err
		if !ShouldRetry(err) {
			return err
		}
	}

	return fmt.Errorf("evolution: tentativas esgotadas em %s: %w", path, lastErr)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("evolution: marshal: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("evolution: new request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("evolution: request: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(data, &msg) == nil {
			if msg.Message != "" {
				apiErr.Message = msg.Message
			} else {
				apiErr.Message = msg.Error
			}
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("evolution: unmarshal resposta: %w", err)
		}
	}

	return nil
}

// ShouldRetry classifica a falha: 5xx, 429 e erros de rede/timeout são
// transitórios; qualquer outro 4xx é terminal e nunca é retentado.
func ShouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// http.Client envolve erros de transporte em *url.Error.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Backoff calcula o atraso exponencial da tentativa: base * factor^(n-1).
func Backoff(attempt int, base time.Duration, factor float64) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= factor
	}
	const maxBackoff = 30 * time.Second
	if d > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(d)
}
