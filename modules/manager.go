package modules

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
)

// Status is the synchronous snapshot returned by GetStatus.
type Status struct {
	Connected        bool      `json:"connected"`
	Connecting       bool      `json:"connecting"`
	PairingCode      string    `json:"pairingCode,omitempty"`
	Identity         *Identity `json:"identity,omitempty"`
	PendingQueueSize int       `json:"pendingQueueSize"`
}

// SendReceipt is the network acknowledgment of a delivered message.
type SendReceipt struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// ApplyResult records one settings-application sub-step, so a failed profile
// update does not hide whether presence went through.
type ApplyResult struct {
	Step string
	Err  error
}

// ManagerOptions wires the manager's collaborators. Everything is injected;
// there is no package-level instance.
type ManagerOptions struct {
	SettingsStore *SettingsStore
	// Settings is the baseline used when no store is configured (or the
	// store has nothing persisted yet). Nil means DefaultSettings.
	Settings *Settings
	AuthDir  string
	Factory  SessionFactory
	Numbers  *NumberCache
	Logger   zerolog.Logger
}

// SessionManager owns the one live session to the messaging network: the
// connect/reconnect state machine, QR pairing, inbound fan-out, the pending
// send queue and the best-effort query helpers. Consumers only ever talk to
// this type, never to the socket.
type SessionManager struct {
	mu sync.Mutex

	store   *SettingsStore
	authDir string
	dial    SessionFactory
	numbers *NumberCache
	log     zerolog.Logger

	base     *Settings
	settings *Settings
	plan     NumberingPlan

	session     Session
	connected   bool
	connecting  bool
	pairingCode string
	identity    *Identity

	pending           pendingQueue
	reconnectTimer    *time.Timer
	reconnectAttempts int

	msgHandlers    *registry[MessageEvent]
	statusHandlers *registry[StatusEvent]

	photos photoCache
}

func NewSessionManager(opts ManagerOptions) *SessionManager {
	if opts.Factory == nil {
		opts.Factory = NewWhatsmeowSession
	}
	if opts.AuthDir == "" {
		opts.AuthDir = "./auth_info"
	}
	if opts.Settings == nil {
		opts.Settings = DefaultSettings()
	}
	return &SessionManager{
		store:          opts.SettingsStore,
		authDir:        opts.AuthDir,
		dial:           opts.Factory,
		numbers:        opts.Numbers,
		log:            opts.Logger,
		base:           opts.Settings,
		settings:       opts.Settings,
		plan:           PlanFor(opts.Settings.CountryCode),
		msgHandlers:    newRegistry[MessageEvent](),
		statusHandlers: newRegistry[StatusEvent](),
	}
}

// Initialize opens a new session using the persisted credentials. It is a
// guarded no-op while another attempt is in flight. On failure a retry is
// scheduled until the budget runs out; past that point the error goes back
// to the caller and recovery requires another explicit call.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.connecting || m.connected {
		m.log.Warn().Bool("connected", m.connected).Msg("initialize ignorado: sessão já em andamento")
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.pairingCode = ""
	m.mu.Unlock()

	err := m.connect(ctx)
	if err == nil {
		return nil
	}

	m.mu.Lock()
	if !m.connecting {
		// Disconnect chegou durante a tentativa; o teardown vence, nada
		// de reagendar
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("tentativa de conexão abortada pelo teardown")
		return nil
	}
	m.connecting = false
	cfg := m.settings
	if m.reconnectAttempts < cfg.MaxReconnectRetries {
		m.reconnectAttempts++
		attempt := m.reconnectAttempts
		delay := cfg.ReconnectInterval()
		if m.reconnectTimer != nil {
			m.reconnectTimer.Stop()
		}
		m.reconnectTimer = time.AfterFunc(delay, func() {
			_ = m.Initialize(context.Background())
		})
		m.mu.Unlock()
		m.log.Error().Err(err).
			Int("attempt", attempt).
			Int("max", cfg.MaxReconnectRetries).
			Dur("delay", delay).
			Msg("falha ao conectar, nova tentativa agendada")
		return nil
	}
	m.mu.Unlock()
	m.log.Error().Err(err).Msg("falha ao conectar, tentativas esgotadas")
	return err
}

func (m *SessionManager) connect(ctx context.Context) error {
	if err := os.MkdirAll(m.authDir, 0o755); err != nil {
		return fmt.Errorf("criando diretório de credenciais: %w", err)
	}

	cfg := m.base
	if m.store != nil {
		loaded, err := m.store.Load()
		if err != nil {
			m.log.Error().Err(err).Msg("falha lendo settings, usando defaults")
		} else {
			cfg = loaded
		}
	}
	m.mu.Lock()
	m.settings = cfg
	m.plan = PlanFor(cfg.CountryCode)
	m.mu.Unlock()

	sess, err := m.dial(ctx, cfg, m.authDir)
	if err != nil {
		return fmt.Errorf("abrindo sessão: %w", err)
	}
	sess.AddEventHandler(m.handleNetworkEvent)

	var qrChan <-chan whatsmeow.QRChannelItem
	if sess.PairedID() == nil {
		// o canal de QR precisa existir antes do Connect
		qrChan, err = sess.GetQRChannel(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("canal de QR indisponível")
		}
	}
	// a sessão precisa estar visível antes do Connect: o evento Connected
	// pode chegar de forma síncrona e onConnected tem que encontrá-la
	m.mu.Lock()
	if !m.connecting {
		m.mu.Unlock()
		_ = sess.Close()
		return nil
	}
	m.session = sess
	m.mu.Unlock()

	if err := sess.Connect(); err != nil {
		m.mu.Lock()
		if m.session == sess {
			m.session = nil
		}
		m.mu.Unlock()
		_ = sess.Close()
		return fmt.Errorf("conectando sessão: %w", err)
	}

	m.mu.Lock()
	if m.session != sess {
		// Disconnect chegou no meio da tentativa; a sessão recém-aberta
		// não pode sobreviver ao teardown.
		m.mu.Unlock()
		sess.Disconnect()
		_ = sess.Close()
		return nil
	}
	m.mu.Unlock()

	if qrChan != nil {
		go m.consumeQRChannel(qrChan)
	}
	return nil
}

func (m *SessionManager) consumeQRChannel(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			m.mu.Lock()
			m.pairingCode = item.Code
			st := m.statusLocked()
			m.mu.Unlock()
			m.log.Info().Msg("novo código de pareamento recebido")
			m.broadcastStatus(st)
		case "success":
			m.log.Info().Msg("pareamento autenticado")
		default:
			m.log.Warn().Str("event", item.Event).Msg("canal de QR encerrado")
		}
	}
}

// handleNetworkEvent is the single entry point for everything the network
// pushes at us.
func (m *SessionManager) handleNetworkEvent(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		m.onConnected()
	case *events.PairSuccess:
		m.log.Info().Str("id", e.ID.String()).Msg("dispositivo pareado")
	case *events.Disconnected:
		m.onDisconnected()
	case *events.StreamReplaced:
		m.log.Warn().Msg("stream substituído por outra conexão")
		m.onDisconnected()
	case *events.ConnectFailure:
		if e.Reason == events.ConnectFailureLoggedOut {
			m.onLoggedOut()
		} else {
			m.log.Warn().Int("reason", int(e.Reason)).Msg("falha de conexão reportada pela rede")
			m.onDisconnected()
		}
	case *events.LoggedOut:
		m.onLoggedOut()
	case *events.Message:
		m.onNetworkMessage(e)
	}
}

func (m *SessionManager) onConnected() {
	m.mu.Lock()
	sess := m.session
	if sess == nil {
		m.mu.Unlock()
		return
	}
	m.connected = true
	m.connecting = false
	m.pairingCode = ""
	m.reconnectAttempts = 0
	if id := sess.PairedID(); id != nil {
		m.identity = &Identity{ID: id.String(), Name: sess.PushName(), Phone: id.User}
	}
	cfg := m.settings
	queued := m.pending.takeAll()
	st := m.statusLocked()
	m.mu.Unlock()

	for _, res := range m.applySettings(context.Background(), sess, cfg) {
		if res.Err != nil {
			m.log.Warn().Err(res.Err).Str("step", res.Step).Msg("aplicação de setting falhou")
		} else {
			m.log.Debug().Str("step", res.Step).Msg("setting aplicada")
		}
	}

	m.log.Info().Int("queued", len(queued)).Msg("✅ sessão conectada")
	m.broadcastStatus(st)

	if len(queued) > 0 {
		go m.drainQueue(sess, cfg, queued)
	}
}

// drainQueue flushes sends captured while offline, strictly in arrival order
// and paced so the provider does not flag the burst. One failed item never
// stops the rest.
func (m *SessionManager) drainQueue(sess Session, cfg *Settings, queued []*OutboundRequest) {
	limiter := rate.NewLimiter(rate.Every(cfg.SendPacing()), 1)
	ctx := context.Background()
	for _, req := range queued {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := m.deliver(ctx, sess, cfg, req.To, req.Content, req.Options); err != nil {
			m.log.Error().Err(err).Str("id", req.ID).Str("to", req.To).Msg("falha enviando mensagem enfileirada")
		} else {
			m.log.Info().Str("id", req.ID).Str("to", req.To).Msg("📦 mensagem enfileirada entregue")
		}
	}
	LogMemUsage(m.log)
}

func (m *SessionManager) onDisconnected() {
	m.mu.Lock()
	sess := m.session
	if sess == nil {
		// já limpamos, desconexão deliberada
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.connected = false
	m.connecting = false
	m.pairingCode = ""
	cfg := m.settings
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.AfterFunc(cfg.ReconnectInterval(), func() {
		_ = m.Initialize(context.Background())
	})
	st := m.statusLocked()
	m.mu.Unlock()

	go func() {
		sess.Disconnect()
		_ = sess.Close()
	}()
	m.log.Warn().Dur("delay", cfg.ReconnectInterval()).Msg("sessão caiu, reconexão agendada")
	m.broadcastStatus(st)
}

func (m *SessionManager) onLoggedOut() {
	m.log.Warn().Msg("sessão deslogada pelo provedor, sem reconexão")
	m.mu.Lock()
	observers := m.statusHandlers.snapshot()
	m.mu.Unlock()
	m.cleanup()
	for _, fn := range observers {
		safeInvoke(m.log, fn, StatusEvent{})
	}
}

func (m *SessionManager) onNetworkMessage(evt *events.Message) {
	m.mu.Lock()
	sess := m.session
	cfg := m.settings
	connected := m.connected
	m.mu.Unlock()
	if !connected || sess == nil {
		return
	}

	info := evt.Info
	chat := info.Chat.String()
	if info.IsFromMe || strings.Contains(chat, "status") || evt.SourceWebMsg.GetBroadcast() {
		return
	}

	id := info.ID
	if edited := evt.Message.GetProtocolMessage().GetKey().GetID(); edited != "" {
		id = edited
	}
	ctx := context.Background()
	me := MessageEvent{
		ID:         id,
		ChatID:     chat,
		Sender:     info.Sender.User,
		SenderName: info.PushName,
		Text:       extractText(evt.Message),
		Kind:       classifyKind(evt.Message),
		Timestamp:  info.Timestamp,
		IsGroup:    info.Chat.Server == types.GroupServer,
		Media:      downloadMedia(ctx, sess, evt, cfg),
	}
	if me.IsGroup {
		// melhor esforço, o evento segue sem nome se a consulta falhar
		if gi, err := sess.GetGroupInfo(ctx, info.Chat); err == nil {
			me.GroupName = gi.Name
		}
	}
	m.dispatchMessage(me)

	if cfg.MarkMessagesRead {
		receipt := types.ReceiptTypeRead
		if !cfg.SendReadReceipts {
			receipt = types.ReceiptTypeReadSelf
		}
		if err := sess.MarkRead(ctx, []types.MessageID{info.ID}, time.Now(), info.Chat, info.Sender, receipt); err != nil {
			m.log.Debug().Err(err).Str("chat", chat).Msg("mark-read automático falhou")
		}
	}
}

func (m *SessionManager) dispatchMessage(evt MessageEvent) {
	m.mu.Lock()
	handlers := m.msgHandlers.snapshot()
	m.mu.Unlock()
	for _, fn := range handlers {
		safeInvoke(m.log, fn, evt)
	}
}

func (m *SessionManager) broadcastStatus(evt StatusEvent) {
	m.mu.Lock()
	handlers := m.statusHandlers.snapshot()
	m.mu.Unlock()
	for _, fn := range handlers {
		safeInvoke(m.log, fn, evt)
	}
}

// statusLocked builds the broadcast payload; caller holds the mutex.
func (m *SessionManager) statusLocked() StatusEvent {
	return StatusEvent{
		Connected:   m.connected,
		Connecting:  m.connecting,
		PairingCode: m.pairingCode,
		Identity:    m.identity,
	}
}

// applySettings pushes the operator profile onto the live session. Every
// sub-step is independently fallible; the result list keeps the detail.
func (m *SessionManager) applySettings(ctx context.Context, sess Session, cfg *Settings) []ApplyResult {
	var results []ApplyResult
	step := func(name string, fn func() error) {
		results = append(results, ApplyResult{Step: name, Err: fn()})
	}
	if cfg.ProfileName != "" {
		step("profileName", func() error {
			sess.SetPushName(cfg.ProfileName)
			return nil
		})
	}
	if cfg.MarkOnlineOnConnect {
		step("presence", func() error {
			return sess.SendPresence(ctx, types.PresenceAvailable)
		})
	}
	if cfg.ProfileStatus != "" {
		step("profileStatus", func() error {
			return sess.SetStatusMessage(ctx, cfg.ProfileStatus)
		})
	}
	if cfg.ProfilePicture != "" {
		step("profilePicture", func() error {
			data, err := os.ReadFile(cfg.ProfilePicture)
			if err != nil {
				return err
			}
			if kind, _ := filetype.Match(data); kind.MIME.Value == "image/webp" {
				if data, err = webpToJPEG(data); err != nil {
					return err
				}
			}
			return sess.SetProfilePhoto(ctx, data)
		})
	}
	if m.numbers != nil {
		step("numberCachePurge", func() error {
			m.numbers.PurgeExpired()
			return nil
		})
	}
	return results
}

// SendMessage delivers content to a destination. Without a live session the
// request is queued FIFO and a nil receipt is returned; the caller must not
// assume synchronous delivery.
func (m *SessionManager) SendMessage(ctx context.Context, destination string, content Content, opts *SendOptions) (*SendReceipt, error) {
	m.mu.Lock()
	if !m.connected || m.session == nil {
		req := m.pending.push(destination, content, opts)
		size := m.pending.size()
		m.mu.Unlock()
		m.log.Info().Str("id", req.ID).Str("to", destination).Int("queueSize", size).Msg("sem sessão ativa, mensagem enfileirada")
		return nil, nil
	}
	sess := m.session
	cfg := m.settings
	m.mu.Unlock()
	return m.deliver(ctx, sess, cfg, destination, content, opts)
}

func (m *SessionManager) deliver(ctx context.Context, sess Session, cfg *Settings, destination string, content Content, opts *SendOptions) (*SendReceipt, error) {
	jid, err := m.resolveDestination(ctx, sess, destination)
	if err != nil {
		return nil, err
	}
	msg, err := buildMessage(ctx, sess, content)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.Quoted != nil {
		msg = m.quoteMessage(ctx, sess, msg, content, opts.Quoted)
	}
	if opts != nil && opts.EditID != "" {
		msg = sess.BuildEdit(jid, opts.EditID, msg)
	}
	if cfg.ShowClientStatus {
		_ = sess.SendChatPresence(ctx, jid, types.ChatPresenceComposing, "")
		defer func() { _ = sess.SendChatPresence(ctx, jid, types.ChatPresencePaused, "") }()
	}
	resp, err := sess.SendMessage(ctx, jid, msg)
	if err != nil {
		return nil, fmt.Errorf("enviando para %s: %w", jid.String(), err)
	}
	return &SendReceipt{ID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

// quoteMessage rewrites a plain text payload as a reply. Resolution failures
// just drop the quote, never the message.
func (m *SessionManager) quoteMessage(ctx context.Context, sess Session, msg *waE2E.Message, content Content, quoted *QuotedRef) *waE2E.Message {
	participant, err := m.resolveDestination(ctx, sess, quoted.Sender)
	if err != nil {
		m.log.Debug().Err(err).Msg("quote descartado, remetente não resolvido")
		return msg
	}
	if msg.GetConversation() == "" && msg.GetExtendedTextMessage() == nil {
		return msg
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(content.Text),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:    proto.String(quoted.MessageID),
				Participant: proto.String(participant.String()),
				QuotedMessage: &waE2E.Message{
					ExtendedTextMessage: &waE2E.ExtendedTextMessage{
						Text: proto.String(quoted.Text),
					},
				},
			},
		},
	}
}

// resolveDestination turns a bare number (or full address) into the network's
// addressing form, going through the probe cache when possible.
func (m *SessionManager) resolveDestination(ctx context.Context, sess Session, destination string) (types.JID, error) {
	if strings.Contains(destination, "@") {
		return types.ParseJID(destination)
	}
	m.mu.Lock()
	plan := m.plan
	m.mu.Unlock()
	normalized := plan.Normalize(destination)
	if normalized == "" {
		return types.EmptyJID, fmt.Errorf("destino inválido: %q", destination)
	}
	if m.numbers != nil {
		if hit, user, server := m.numbers.Find(normalized); hit {
			if user == "" {
				return types.EmptyJID, fmt.Errorf("número %s não está na rede", normalized)
			}
			return types.JID{User: user, Server: server}, nil
		}
	}
	resp, err := sess.IsOnWhatsApp(ctx, []string{"+" + normalized})
	if err != nil || len(resp) == 0 {
		// consulta falhou, tenta o endereço direto
		return types.NewJID(normalized, types.DefaultUserServer), nil
	}
	if m.numbers != nil {
		m.numbers.Save(normalized, resp[0].JID.User, resp[0].JID.Server, resp[0].IsIn)
	}
	if !resp[0].IsIn {
		return types.EmptyJID, fmt.Errorf("número %s não está na rede", normalized)
	}
	return resp[0].JID, nil
}

// MarkAsRead requests read receipts for messages in a chat. In groups the
// receipt is addressed to senderID (the participant who sent the messages);
// empty senderID falls back to the chat itself, which is right for direct
// chats. Best-effort: a disabled setting, missing session or network error
// all degrade to a no-op.
func (m *SessionManager) MarkAsRead(ctx context.Context, chatID, senderID string, messageIDs []string) {
	m.mu.Lock()
	sess := m.session
	cfg := m.settings
	connected := m.connected
	m.mu.Unlock()
	if !connected || sess == nil || !cfg.MarkMessagesRead || len(messageIDs) == 0 {
		return
	}
	jid, err := m.resolveDestination(ctx, sess, chatID)
	if err != nil {
		m.log.Debug().Err(err).Str("chat", chatID).Msg("mark-read descartado")
		return
	}
	sender := jid
	if senderID != "" {
		resolved, err := m.resolveDestination(ctx, sess, senderID)
		if err != nil {
			m.log.Debug().Err(err).Str("sender", senderID).Msg("remetente do mark-read não resolvido, usando o chat")
		} else {
			sender = resolved
		}
	}
	ids := make([]types.MessageID, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, types.MessageID(id))
	}
	receipt := types.ReceiptTypeRead
	if !cfg.SendReadReceipts {
		receipt = types.ReceiptTypeReadSelf
	}
	if err := sess.MarkRead(ctx, ids, time.Now(), jid, sender, receipt); err != nil {
		m.log.Debug().Err(err).Str("chat", chatID).Msg("mark-read falhou")
	}
}

// GetProfilePicture is a best-effort lookup; nil means absent or unreachable.
func (m *SessionManager) GetProfilePicture(ctx context.Context, chatID string) *ProfilePicture {
	m.mu.Lock()
	sess := m.session
	cfg := m.settings
	connected := m.connected
	m.mu.Unlock()
	if !connected || sess == nil || !cfg.FetchClientPhotos {
		return nil
	}
	if cfg.CacheClientPhotos {
		if pic, ok := m.photos.get(chatID); ok {
			return pic
		}
	}
	jid, err := m.resolveDestination(ctx, sess, chatID)
	if err != nil {
		return nil
	}
	info, err := sess.GetProfilePictureInfo(ctx, jid, &whatsmeow.GetProfilePictureParams{})
	if err != nil || info == nil {
		return nil
	}
	pic := &ProfilePicture{URL: info.URL, ID: info.ID, Type: info.Type}
	if cfg.CacheClientPhotos {
		m.photos.put(chatID, pic)
	}
	return pic
}

// CheckNumberExists probes the network directory; false on any error.
func (m *SessionManager) CheckNumberExists(ctx context.Context, number string) bool {
	m.mu.Lock()
	sess := m.session
	plan := m.plan
	connected := m.connected
	m.mu.Unlock()
	normalized := plan.Normalize(number)
	if normalized == "" {
		return false
	}
	if m.numbers != nil {
		if hit, user, _ := m.numbers.Find(normalized); hit {
			return user != ""
		}
	}
	if !connected || sess == nil {
		return false
	}
	resp, err := sess.IsOnWhatsApp(ctx, []string{"+" + normalized})
	if err != nil || len(resp) == 0 {
		return false
	}
	if m.numbers != nil {
		m.numbers.Save(normalized, resp[0].JID.User, resp[0].JID.Server, resp[0].IsIn)
	}
	return resp[0].IsIn
}

// GetStatus returns the current connection snapshot.
func (m *SessionManager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Connected:        m.connected,
		Connecting:       m.connecting,
		PairingCode:      m.pairingCode,
		Identity:         m.identity,
		PendingQueueSize: m.pending.size(),
	}
}

// OnMessage registers a handler for every inbound message event. The return
// value unsubscribes exactly that handler.
func (m *SessionManager) OnMessage(h MessageHandler) func() {
	m.mu.Lock()
	id := m.msgHandlers.add(h)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.msgHandlers.remove(id)
		m.mu.Unlock()
	}
}

// OnStatusChange registers a handler for connection transitions.
func (m *SessionManager) OnStatusChange(h StatusHandler) func() {
	m.mu.Lock()
	id := m.statusHandlers.add(h)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.statusHandlers.remove(id)
		m.mu.Unlock()
	}
}

// ReloadSettings re-reads the settings store and, with a live session,
// reapplies the profile. Settings changes otherwise wait for the next
// Initialize.
func (m *SessionManager) ReloadSettings(ctx context.Context) ([]ApplyResult, error) {
	if m.store == nil {
		return nil, fmt.Errorf("settings store não configurado")
	}
	cfg, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.settings = cfg
	m.plan = PlanFor(cfg.CountryCode)
	sess := m.session
	connected := m.connected
	m.mu.Unlock()
	if connected && sess != nil {
		return m.applySettings(ctx, sess, cfg), nil
	}
	return nil, nil
}

// Disconnect tears the live session down and resets all session-scoped
// state, including any armed reconnect timer. Idempotent.
func (m *SessionManager) Disconnect() {
	m.log.Info().Msg("desconectando sessão")
	m.cleanup()
}

// DeleteAuthInfo erases the persisted credentials so the next Initialize
// starts a fresh pairing.
func (m *SessionManager) DeleteAuthInfo() error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess != nil {
		if err := sess.Logout(context.Background()); err != nil {
			m.log.Warn().Err(err).Msg("logout remoto falhou, removendo credenciais locais mesmo assim")
		}
	}
	m.cleanup()
	if err := os.RemoveAll(m.authDir); err != nil {
		return fmt.Errorf("removendo credenciais: %w", err)
	}
	m.log.Info().Str("dir", m.authDir).Msg("credenciais removidas")
	return nil
}

// cleanup resets every piece of session-scoped state. Queued sends are
// abandoned, not flushed, and both handler registries are emptied.
func (m *SessionManager) cleanup() {
	m.mu.Lock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	sess := m.session
	m.session = nil
	m.connected = false
	m.connecting = false
	m.pairingCode = ""
	m.identity = nil
	dropped := m.pending.takeAll()
	m.reconnectAttempts = 0
	m.msgHandlers.clear()
	m.statusHandlers.clear()
	m.mu.Unlock()

	// fotos cacheadas pertencem à conta pareada, não podem sobreviver a um
	// logout seguido de novo pareamento
	m.photos.clear()

	if sess != nil {
		sess.Disconnect()
		_ = sess.Close()
	}
	if len(dropped) > 0 {
		m.log.Warn().Int("dropped", len(dropped)).Msg("fila de envio pendente descartada")
	}
}
