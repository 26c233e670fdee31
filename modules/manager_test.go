package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type fakeSend struct {
	to  types.JID
	msg *waE2E.Message
}

// fakeSession is a scripted stand-in for the network connection. Tests drive
// state transitions by firing events at the registered handler, exactly like
// the real socket would.
type fakeSession struct {
	mu              sync.Mutex
	handler         func(any)
	connectErr      error
	fireOnConnect   bool
	paired          *types.JID
	pushName        string
	sent            []fakeSend
	presences       int
	chatPresence    int
	markReads       []types.ReceiptType
	markReadChats   []types.JID
	markReadSenders []types.JID
	picRequests     int
	loggedOut       bool
	closed          bool
	probeMissing    map[string]bool
	qr              chan whatsmeow.QRChannelItem
}

var _ Session = (*fakeSession)(nil)

func (f *fakeSession) fire(evt any) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (f *fakeSession) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSession) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.fireOnConnect {
		// a biblioteca real pode entregar Connected antes de Connect retornar
		f.fire(&events.Connected{})
	}
	return nil
}

func (f *fakeSession) Disconnect() {}

func (f *fakeSession) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) IsConnected() bool { return true }

func (f *fakeSession) PairedID() *types.JID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paired
}

func (f *fakeSession) PushName() string        { return f.pushName }
func (f *fakeSession) SetPushName(name string) { f.pushName = name }

func (f *fakeSession) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.qr == nil {
		f.qr = make(chan whatsmeow.QRChannelItem, 4)
	}
	return f.qr, nil
}

func (f *fakeSession) AddEventHandler(fn func(evt any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
}

func (f *fakeSession) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (whatsmeow.SendResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, fakeSend{to: to, msg: msg})
	n := len(f.sent)
	f.mu.Unlock()
	return whatsmeow.SendResponse{ID: types.MessageID(fmt.Sprintf("MSG-%d", n)), Timestamp: time.Now()}, nil
}

func (f *fakeSession) BuildEdit(chat types.JID, id types.MessageID, newContent *waE2E.Message) *waE2E.Message {
	return &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
		Key:           &waCommon.MessageKey{ID: proto.String(string(id))},
		EditedMessage: newContent,
	}}
}

func (f *fakeSession) Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return whatsmeow.UploadResponse{URL: "https://media.invalid/blob"}, nil
}

func (f *fakeSession) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return nil, errors.New("sem media no fake")
}

func (f *fakeSession) MarkRead(ctx context.Context, ids []types.MessageID, ts time.Time, chat, sender types.JID, receiptType ...types.ReceiptType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, receiptType...)
	f.markReadChats = append(f.markReadChats, chat)
	f.markReadSenders = append(f.markReadSenders, sender)
	return nil
}

func (f *fakeSession) IsOnWhatsApp(ctx context.Context, numbers []string) ([]types.IsOnWhatsAppResponse, error) {
	out := make([]types.IsOnWhatsAppResponse, 0, len(numbers))
	for _, n := range numbers {
		user := strings.TrimPrefix(n, "+")
		out = append(out, types.IsOnWhatsAppResponse{
			Query: n,
			JID:   types.NewJID(user, types.DefaultUserServer),
			IsIn:  !f.probeMissing[user],
		})
	}
	return out, nil
}

func (f *fakeSession) GetProfilePictureInfo(ctx context.Context, jid types.JID, params *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.picRequests++
	return &types.ProfilePictureInfo{URL: "https://pps.invalid/foto.jpg", ID: "1", Type: "image"}, nil
}

func (f *fakeSession) GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	return &types.GroupInfo{GroupName: types.GroupName{Name: "Grupo de Teste"}}, nil
}

func (f *fakeSession) SendPresence(ctx context.Context, presence types.Presence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presences++
	return nil
}

func (f *fakeSession) SendChatPresence(ctx context.Context, jid types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatPresence++
	return nil
}

func (f *fakeSession) SetStatusMessage(ctx context.Context, msg string) error { return nil }
func (f *fakeSession) SetProfilePhoto(ctx context.Context, jpeg []byte) error { return nil }

func pairedJID() *types.JID {
	jid := types.NewJID("5514999990000", types.DefaultUserServer)
	return &jid
}

func testSettings() *Settings {
	cfg := DefaultSettings()
	cfg.ReconnectIntervalMs = 1
	cfg.SendPacingMs = 1
	cfg.MarkOnlineOnConnect = false
	cfg.LogLevel = "silent"
	return cfg
}

func newTestManager(t *testing.T, factory SessionFactory, cfg *Settings) *SessionManager {
	t.Helper()
	if cfg == nil {
		cfg = testSettings()
	}
	return NewSessionManager(ManagerOptions{
		Settings: cfg,
		AuthDir:  t.TempDir(),
		Factory:  factory,
		Logger:   zerolog.Nop(),
	})
}

func staticFactory(f *fakeSession) SessionFactory {
	return func(ctx context.Context, cfg *Settings, authDir string) (Session, error) {
		return f, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout esperando: %s", what)
}

func connectManager(t *testing.T, m *SessionManager, f *fakeSession) {
	t.Helper()
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	f.fire(&events.Connected{})
	waitFor(t, "sessão conectada", func() bool { return m.GetStatus().Connected })
}

func inboundText(id, from, text string) *events.Message {
	jid := types.NewJID(from, types.DefaultUserServer)
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: jid, Sender: jid},
			ID:            id,
			PushName:      "Cliente",
			Timestamp:     time.Now(),
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestSendMessageQueuedWithoutSession(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)

	receipt, err := m.SendMessage(context.Background(), "14999998888", Content{Text: "oi"}, nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if receipt != nil {
		t.Fatalf("expected nil receipt for queued send, got %+v", receipt)
	}
	if got := m.GetStatus().PendingQueueSize; got != 1 {
		t.Fatalf("expected 1 queued message, got %d", got)
	}
	if f.sentCount() != 0 {
		t.Fatalf("nothing should hit the network while disconnected")
	}
}

func TestQueueDrainsInOrderOnConnect(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	ctx := context.Background()

	for _, text := range []string{"primeira", "segunda", "terceira"} {
		if _, err := m.SendMessage(ctx, "14999998888", Content{Text: text}, nil); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}
	connectManager(t, m, f)
	waitFor(t, "fila drenada", func() bool { return f.sentCount() == 3 })

	if got := m.GetStatus().PendingQueueSize; got != 0 {
		t.Fatalf("expected empty queue after drain, got %d", got)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, want := range []string{"primeira", "segunda", "terceira"} {
		if got := f.sent[i].msg.GetConversation(); got != want {
			t.Fatalf("drain out of order at %d: got %q want %q", i, got, want)
		}
	}
}

func TestSendMessageDeliversDirectlyWhenConnected(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	receipt, err := m.SendMessage(context.Background(), "14999998888", Content{Text: "direto"}, nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if receipt == nil || receipt.ID == "" {
		t.Fatalf("expected a receipt for direct send, got %+v", receipt)
	}
	if f.sentCount() != 1 {
		t.Fatalf("expected 1 delivered message, got %d", f.sentCount())
	}
	f.mu.Lock()
	to := f.sent[0].to
	f.mu.Unlock()
	if to.User != "5514999998888" {
		t.Fatalf("destination not normalized: got %q", to.User)
	}
}

func TestInitializeWhileConnectingIsNoOp(t *testing.T) {
	var dials int32
	f := &fakeSession{paired: pairedJID()}
	factory := func(ctx context.Context, cfg *Settings, authDir string) (Session, error) {
		atomic.AddInt32(&dials, 1)
		return f, nil
	}
	m := newTestManager(t, factory, nil)
	ctx := context.Background()

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !m.GetStatus().Connecting {
		t.Fatalf("expected connecting state after Initialize")
	}
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize should be a no-op, got %v", err)
	}
	if got := atomic.LoadInt32(&dials); got != 1 {
		t.Fatalf("expected a single dial, got %d", got)
	}
}

func TestConnectedDeliveredDuringConnectCall(t *testing.T) {
	f := &fakeSession{paired: pairedJID(), fireOnConnect: true}
	m := newTestManager(t, staticFactory(f), nil)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	st := m.GetStatus()
	if !st.Connected || st.Connecting {
		t.Fatalf("connected event during Connect must land, got %+v", st)
	}
	if st.Identity == nil || st.Identity.Phone != "5514999990000" {
		t.Fatalf("identity must be captured, got %+v", st.Identity)
	}
}

func TestRetryStopsAfterBudget(t *testing.T) {
	var dials int32
	factory := func(ctx context.Context, cfg *Settings, authDir string) (Session, error) {
		atomic.AddInt32(&dials, 1)
		return nil, errors.New("rede fora do ar")
	}
	cfg := testSettings()
	cfg.MaxReconnectRetries = 2
	m := newTestManager(t, factory, cfg)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize should schedule a retry, got %v", err)
	}
	// tentativa inicial + 2 retries automáticos
	waitFor(t, "retries agendados", func() bool { return atomic.LoadInt32(&dials) == 3 })
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&dials); got != 3 {
		t.Fatalf("retry budget overrun: %d dials", got)
	}

	if err := m.Initialize(context.Background()); err == nil {
		t.Fatalf("expected error from Initialize after budget exhausted")
	}
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&dials); got != 4 {
		t.Fatalf("explicit Initialize must not reschedule: %d dials", got)
	}
}

func TestDisconnectDuringFailingAttemptCancelsRetry(t *testing.T) {
	var dials int32
	release := make(chan error)
	factory := func(ctx context.Context, cfg *Settings, authDir string) (Session, error) {
		atomic.AddInt32(&dials, 1)
		return nil, <-release
	}
	m := newTestManager(t, factory, nil)

	done := make(chan error, 1)
	go func() { done <- m.Initialize(context.Background()) }()
	waitFor(t, "tentativa em andamento", func() bool { return atomic.LoadInt32(&dials) == 1 })

	m.Disconnect()
	release <- errors.New("rede fora do ar")
	if err := <-done; err != nil {
		t.Fatalf("aborted attempt must not surface an error, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&dials); got != 1 {
		t.Fatalf("teardown must cancel reconnection, got %d dials", got)
	}
	st := m.GetStatus()
	if st.Connected || st.Connecting {
		t.Fatalf("expected disconnected state, got %+v", st)
	}
}

func TestDisconnectedSchedulesReconnect(t *testing.T) {
	var dials int32
	f := &fakeSession{paired: pairedJID()}
	factory := func(ctx context.Context, cfg *Settings, authDir string) (Session, error) {
		atomic.AddInt32(&dials, 1)
		return f, nil
	}
	m := newTestManager(t, factory, nil)
	connectManager(t, m, f)

	f.fire(&events.Disconnected{})
	waitFor(t, "reconexão discada", func() bool { return atomic.LoadInt32(&dials) == 2 })
	waitFor(t, "nova sessão registrada", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.session != nil && m.connecting
	})

	f.fire(&events.Connected{})
	waitFor(t, "sessão reconectada", func() bool { return m.GetStatus().Connected })
}

func TestLogoutIsTerminal(t *testing.T) {
	var dials int32
	f := &fakeSession{paired: pairedJID()}
	factory := func(ctx context.Context, cfg *Settings, authDir string) (Session, error) {
		atomic.AddInt32(&dials, 1)
		return f, nil
	}
	m := newTestManager(t, factory, nil)
	connectManager(t, m, f)

	var mu sync.Mutex
	var lastStatus *StatusEvent
	var messages int
	m.OnStatusChange(func(evt StatusEvent) {
		mu.Lock()
		lastStatus = &evt
		mu.Unlock()
	})
	m.OnMessage(func(MessageEvent) {
		mu.Lock()
		messages++
		mu.Unlock()
	})
	if _, err := m.SendMessage(context.Background(), "14999998888", Content{Text: "antes"}, nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	f.fire(&events.LoggedOut{})

	mu.Lock()
	if lastStatus == nil || lastStatus.Connected {
		t.Fatalf("status observers must see the terminal disconnect, got %+v", lastStatus)
	}
	mu.Unlock()

	st := m.GetStatus()
	if st.Connected || st.Connecting || st.PendingQueueSize != 0 || st.Identity != nil {
		t.Fatalf("logout must reset all session state, got %+v", st)
	}
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&dials); got != 1 {
		t.Fatalf("logout must not schedule reconnection, got %d dials", got)
	}

	// registros de handlers também são limpos
	f.fire(inboundText("A1", "5514988887777", "depois do logout"))
	mu.Lock()
	defer mu.Unlock()
	if messages != 0 {
		t.Fatalf("cleared handlers must not receive events")
	}
}

func TestInboundDispatchReachesEveryHandler(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	var mu sync.Mutex
	var first, second []string
	m.OnMessage(func(evt MessageEvent) {
		mu.Lock()
		first = append(first, evt.Text)
		mu.Unlock()
	})
	m.OnMessage(func(evt MessageEvent) {
		mu.Lock()
		second = append(second, evt.Text)
		mu.Unlock()
	})

	f.fire(inboundText("A1", "5514988887777", "olá"))

	mu.Lock()
	defer mu.Unlock()
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("every handler must see the event exactly once: %v / %v", first, second)
	}
	if first[0] != "olá" {
		t.Fatalf("unexpected text: %q", first[0])
	}
}

func TestPanickingHandlerDoesNotStopDispatch(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	var mu sync.Mutex
	var survived int
	m.OnMessage(func(MessageEvent) { panic("handler quebrado") })
	m.OnMessage(func(MessageEvent) {
		mu.Lock()
		survived++
		mu.Unlock()
	})

	f.fire(inboundText("A1", "5514988887777", "oi"))
	f.fire(inboundText("A2", "5514988887777", "tudo bem"))

	mu.Lock()
	defer mu.Unlock()
	if survived != 2 {
		t.Fatalf("surviving handler must keep receiving events, got %d", survived)
	}
}

func TestUnsubscribeRemovesExactlyOneHandler(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	var mu sync.Mutex
	var a, b int
	unsubA := m.OnMessage(func(MessageEvent) {
		mu.Lock()
		a++
		mu.Unlock()
	})
	m.OnMessage(func(MessageEvent) {
		mu.Lock()
		b++
		mu.Unlock()
	})

	unsubA()
	unsubA() // segunda chamada é inofensiva
	f.fire(inboundText("A1", "5514988887777", "oi"))

	mu.Lock()
	defer mu.Unlock()
	if a != 0 {
		t.Fatalf("unsubscribed handler must not receive events, got %d", a)
	}
	if b != 1 {
		t.Fatalf("remaining handler must still receive events, got %d", b)
	}
}

func TestSubscribeMidDispatchSkipsInFlightEvent(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	var mu sync.Mutex
	var late []string
	registered := false
	m.OnMessage(func(evt MessageEvent) {
		mu.Lock()
		defer mu.Unlock()
		if !registered {
			registered = true
			m.OnMessage(func(evt MessageEvent) {
				mu.Lock()
				late = append(late, evt.Text)
				mu.Unlock()
			})
		}
	})

	f.fire(inboundText("A1", "5514988887777", "primeira"))
	f.fire(inboundText("A2", "5514988887777", "segunda"))

	mu.Lock()
	defer mu.Unlock()
	if len(late) != 1 || late[0] != "segunda" {
		t.Fatalf("mid-dispatch subscriber must only see later events, got %v", late)
	}
}

func TestInboundEventsArriveInOrder(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	var mu sync.Mutex
	var got []MessageEvent
	m.OnMessage(func(evt MessageEvent) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	})

	first := inboundText("A1", "5514988887777", "primeira")
	second := inboundText("A2", "5514988887777", "segunda")
	second.Info.Timestamp = first.Info.Timestamp.Add(time.Second)
	f.fire(first)
	f.fire(second)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 events without coalescing, got %d", len(got))
	}
	if got[0].Text != "primeira" || got[1].Text != "segunda" {
		t.Fatalf("events out of arrival order: %q, %q", got[0].Text, got[1].Text)
	}
	if !got[1].Timestamp.After(got[0].Timestamp) {
		t.Fatalf("timestamps must stay distinct and ordered")
	}
}

func TestOwnAndStatusMessagesAreIgnored(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	var mu sync.Mutex
	var got int
	m.OnMessage(func(MessageEvent) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	own := inboundText("A1", "5514988887777", "minha própria")
	own.Info.IsFromMe = true
	f.fire(own)

	status := inboundText("A2", "5514988887777", "story")
	status.Info.Chat = types.StatusBroadcastJID
	f.fire(status)

	mu.Lock()
	defer mu.Unlock()
	if got != 0 {
		t.Fatalf("own and status-broadcast messages must not be dispatched, got %d", got)
	}
}

func TestMarkAsReadHonorsSettings(t *testing.T) {
	cfg := testSettings()
	cfg.MarkMessagesRead = false
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), cfg)
	connectManager(t, m, f)

	m.MarkAsRead(context.Background(), "14999998888", "", []string{"A1"})
	f.mu.Lock()
	if len(f.markReads) != 0 {
		f.mu.Unlock()
		t.Fatalf("markMessagesRead=false must suppress receipts")
	}
	f.mu.Unlock()
}

func TestMarkAsReadReceiptTypeFollowsSendReadReceipts(t *testing.T) {
	cfg := testSettings()
	cfg.SendReadReceipts = false
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), cfg)
	connectManager(t, m, f)

	m.MarkAsRead(context.Background(), "14999998888", "", []string{"A1"})
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.markReads) != 1 || f.markReads[0] != types.ReceiptTypeReadSelf {
		t.Fatalf("sendReadReceipts=false must use the self receipt, got %v", f.markReads)
	}
}

func TestMarkAsReadAddressesGroupSender(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	connectManager(t, m, f)

	m.MarkAsRead(context.Background(), "120363012345678901@g.us", "14988887777", []string{"A1"})
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.markReadChats) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(f.markReadChats))
	}
	if f.markReadChats[0].Server != types.GroupServer {
		t.Fatalf("receipt must target the group chat, got %s", f.markReadChats[0])
	}
	if f.markReadSenders[0].User != "5514988887777" {
		t.Fatalf("receipt must address the participant, got %s", f.markReadSenders[0])
	}
}

func TestCheckNumberExists(t *testing.T) {
	f := &fakeSession{
		paired:       pairedJID(),
		probeMissing: map[string]bool{"5514900000000": true},
	}
	m := newTestManager(t, staticFactory(f), nil)

	ctx := context.Background()
	if m.CheckNumberExists(ctx, "14999998888") {
		t.Fatalf("without a session the check must fail closed")
	}
	connectManager(t, m, f)
	if !m.CheckNumberExists(ctx, "14999998888") {
		t.Fatalf("expected number to exist")
	}
	if m.CheckNumberExists(ctx, "14900000000") {
		t.Fatalf("expected number to be missing")
	}
}

func TestGetProfilePictureUsesCache(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)

	ctx := context.Background()
	if pic := m.GetProfilePicture(ctx, "14999998888"); pic != nil {
		t.Fatalf("without a session the lookup must return nil")
	}
	connectManager(t, m, f)

	pic := m.GetProfilePicture(ctx, "14999998888")
	if pic == nil || pic.URL == "" {
		t.Fatalf("expected a profile picture, got %+v", pic)
	}
	_ = m.GetProfilePicture(ctx, "14999998888")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.picRequests != 1 {
		t.Fatalf("second lookup must come from cache, got %d network requests", f.picRequests)
	}
}

func TestProfilePictureCacheClearedOnCleanup(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)
	ctx := context.Background()

	connectManager(t, m, f)
	if pic := m.GetProfilePicture(ctx, "14999998888"); pic == nil {
		t.Fatalf("expected a profile picture before teardown")
	}

	m.Disconnect()
	connectManager(t, m, f)
	if pic := m.GetProfilePicture(ctx, "14999998888"); pic == nil {
		t.Fatalf("expected a profile picture after reconnect")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.picRequests != 2 {
		t.Fatalf("cached photos must not survive cleanup, got %d network requests", f.picRequests)
	}
}

func TestPairingCodeFlowsThroughStatus(t *testing.T) {
	f := &fakeSession{}
	m := newTestManager(t, staticFactory(f), nil)

	var mu sync.Mutex
	var seen []string
	m.OnStatusChange(func(evt StatusEvent) {
		mu.Lock()
		seen = append(seen, evt.PairingCode)
		mu.Unlock()
	})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	f.mu.Lock()
	qr := f.qr
	f.mu.Unlock()
	if qr == nil {
		t.Fatalf("unpaired session must open the QR channel")
	}
	qr <- whatsmeow.QRChannelItem{Event: "code", Code: "CODE-1"}
	waitFor(t, "pairing code publicado", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "CODE-1"
	})
	if m.GetStatus().PairingCode != "CODE-1" {
		t.Fatalf("pairing code missing from status snapshot")
	}

	f.mu.Lock()
	f.paired = pairedJID()
	f.mu.Unlock()
	f.fire(&events.Connected{})
	waitFor(t, "sessão pareada", func() bool { return m.GetStatus().Connected })

	st := m.GetStatus()
	if st.PairingCode != "" {
		t.Fatalf("pairing code must be cleared once connected")
	}
	if st.Identity == nil || st.Identity.Phone != "5514999990000" {
		t.Fatalf("identity must be captured on connect, got %+v", st.Identity)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	m := newTestManager(t, staticFactory(f), nil)

	m.Disconnect() // sem sessão, nada a fazer
	connectManager(t, m, f)
	m.Disconnect()
	m.Disconnect()

	st := m.GetStatus()
	if st.Connected || st.Connecting {
		t.Fatalf("expected disconnected state, got %+v", st)
	}
	time.Sleep(20 * time.Millisecond)
	if m.GetStatus().Connected {
		t.Fatalf("deliberate disconnect must not trigger reconnection")
	}

	// envios capturados offline são abandonados, nunca re-entregues
	if _, err := m.SendMessage(context.Background(), "14999998888", Content{Text: "órfã"}, nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if m.GetStatus().PendingQueueSize != 1 {
		t.Fatalf("expected queued send while disconnected")
	}
	m.Disconnect()
	if m.GetStatus().PendingQueueSize != 0 {
		t.Fatalf("cleanup must abandon the pending queue")
	}
}

func TestDeleteAuthInfoErasesCredentials(t *testing.T) {
	f := &fakeSession{paired: pairedJID()}
	authDir := t.TempDir()
	m := NewSessionManager(ManagerOptions{
		Settings: testSettings(),
		AuthDir:  authDir,
		Factory:  staticFactory(f),
		Logger:   zerolog.Nop(),
	})
	connectManager(t, m, f)
	if err := os.WriteFile(authDir+"/session.db", []byte("creds"), 0o600); err != nil {
		t.Fatalf("seeding auth dir: %v", err)
	}

	if err := m.DeleteAuthInfo(); err != nil {
		t.Fatalf("DeleteAuthInfo failed: %v", err)
	}
	f.mu.Lock()
	if !f.loggedOut {
		f.mu.Unlock()
		t.Fatalf("remote logout must be attempted before erasing credentials")
	}
	f.mu.Unlock()
	if _, err := os.Stat(authDir); !os.IsNotExist(err) {
		t.Fatalf("auth dir must be removed, stat err: %v", err)
	}
	st := m.GetStatus()
	if st.Connected || st.Connecting || st.Identity != nil {
		t.Fatalf("expected reset state after DeleteAuthInfo, got %+v", st)
	}
}
