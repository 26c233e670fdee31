package modules

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var webhookBufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// webhookEnvelope is the payload shape the dashboard backend ingests.
type webhookEnvelope struct {
	Event   string        `json:"evento"`
	SentAt  int64         `json:"sentAt"`
	Message *MessageEvent `json:"mensagem,omitempty"`
	Status  *StatusEvent  `json:"status,omitempty"`
}

// WebhookForwarder bridges manager events to an HTTP backend: every inbound
// message and every status transition becomes one POST. Delivery is fire and
// forget; the backend reconciles through the status endpoint if it misses one.
type WebhookForwarder struct {
	url       string
	authToken string
	csrfToken string
	client    *http.Client
	log       zerolog.Logger

	unsubscribe []func()
}

func NewWebhookForwarder(url, authToken string, log zerolog.Logger) *WebhookForwarder {
	return &WebhookForwarder{
		url:       url,
		authToken: authToken,
		csrfToken: uuid.NewString(),
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
}

// Attach subscribes the forwarder to a manager. Session cleanup wipes the
// manager's handler registries, so the gateway re-attaches on every
// initialize; Attach drops its previous subscriptions first to stay
// idempotent.
func (w *WebhookForwarder) Attach(m *SessionManager) {
	if w.url == "" {
		w.log.Warn().Msg("webhook sem URL configurada, eventos não serão repassados")
		return
	}
	w.Detach()
	w.unsubscribe = append(w.unsubscribe,
		m.OnMessage(func(evt MessageEvent) {
			w.post(webhookEnvelope{Event: "MENSAGEM_RECEBIDA", SentAt: time.Now().Unix(), Message: &evt})
		}),
		m.OnStatusChange(func(evt StatusEvent) {
			w.post(webhookEnvelope{Event: "STATUS_ATUALIZADO", SentAt: time.Now().Unix(), Status: &evt})
		}),
	)
}

func (w *WebhookForwarder) Detach() {
	for _, fn := range w.unsubscribe {
		fn()
	}
	w.unsubscribe = nil
}

func (w *WebhookForwarder) post(env webhookEnvelope) {
	buf := webhookBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer webhookBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(env); err != nil {
		w.log.Error().Err(err).Msg("falha serializando envelope do webhook")
		return
	}
	req, err := http.NewRequest(http.MethodPost, w.url, buf)
	if err != nil {
		w.log.Error().Err(err).Msg("falha criando requisição do webhook")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", w.authToken)
	req.Header.Set("X-CSRFToken", w.csrfToken)
	res, err := w.client.Do(req)
	if err != nil {
		w.log.Warn().Err(err).Str("event", env.Event).Msg("webhook inacessível")
		return
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		w.log.Warn().Int("status", res.StatusCode).Str("body", string(body)).Msg("webhook recusou o evento")
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
}
