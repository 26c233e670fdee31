package modules

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Session is the live connection handle to the messaging network. The
// protocol itself is a black box; this is the surface the manager needs to
// drive it, and the seam the tests replace with a scripted fake.
type Session interface {
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	Close() error
	IsConnected() bool
	PairedID() *types.JID
	PushName() string
	SetPushName(name string)
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	AddEventHandler(fn func(evt any))
	SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (whatsmeow.SendResponse, error)
	BuildEdit(chat types.JID, id types.MessageID, newContent *waE2E.Message) *waE2E.Message
	Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	MarkRead(ctx context.Context, ids []types.MessageID, ts time.Time, chat, sender types.JID, receiptType ...types.ReceiptType) error
	IsOnWhatsApp(ctx context.Context, numbers []string) ([]types.IsOnWhatsAppResponse, error)
	GetProfilePictureInfo(ctx context.Context, jid types.JID, params *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error)
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	SendPresence(ctx context.Context, presence types.Presence) error
	SendChatPresence(ctx context.Context, jid types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error
	SetStatusMessage(ctx context.Context, msg string) error
	SetProfilePhoto(ctx context.Context, jpeg []byte) error
}

// SessionFactory opens a new Session against the network using the persisted
// credentials under authDir. The manager owns exactly one Session at a time.
type SessionFactory func(ctx context.Context, cfg *Settings, authDir string) (Session, error)

type meowSession struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
}

// NewWhatsmeowSession is the production SessionFactory: a whatsmeow client on
// top of a sqlite credential container inside authDir. Credential rotations
// are persisted by the container on every keys update, so a crash right after
// a rotation does not force re-pairing.
func NewWhatsmeowSession(ctx context.Context, cfg *Settings, authDir string) (Session, error) {
	level := strings.ToUpper(cfg.LogLevel)
	if level == "SILENT" {
		level = "ERROR"
	}
	dbLog := waLog.Stdout("Database", level, true)
	dsn := "file:" + filepath.Join(authDir, "session.db") + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, dbLog)
	if err != nil {
		return nil, fmt.Errorf("abrindo credential store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("carregando device: %w", err)
	}
	store.DeviceProps = &waCompanionReg.DeviceProps{Os: proto.String("Stingray Business")}

	cli := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", level, true))
	// Reconnection is owned by the SessionManager, not by the library.
	cli.EnableAutoReconnect = false
	return &meowSession{cli: cli, container: container}, nil
}

func (s *meowSession) Connect() error            { return s.cli.Connect() }
func (s *meowSession) Disconnect()               { s.cli.Disconnect() }
func (s *meowSession) IsConnected() bool         { return s.cli.IsConnected() }
func (s *meowSession) PushName() string          { return s.cli.Store.PushName }
func (s *meowSession) SetPushName(name string)   { s.cli.Store.PushName = name }
func (s *meowSession) AddEventHandler(fn func(evt any)) {
	s.cli.AddEventHandler(func(evt any) { fn(evt) })
}

func (s *meowSession) Logout(ctx context.Context) error {
	return s.cli.Logout(ctx)
}

func (s *meowSession) Close() error {
	s.container.Close()
	return nil
}

func (s *meowSession) PairedID() *types.JID {
	return s.cli.Store.ID
}

func (s *meowSession) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return s.cli.GetQRChannel(ctx)
}

func (s *meowSession) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (whatsmeow.SendResponse, error) {
	return s.cli.SendMessage(ctx, to, msg)
}

func (s *meowSession) BuildEdit(chat types.JID, id types.MessageID, newContent *waE2E.Message) *waE2E.Message {
	return s.cli.BuildEdit(chat, id, newContent)
}

func (s *meowSession) Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return s.cli.Upload(ctx, data, kind)
}

func (s *meowSession) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return s.cli.Download(ctx, msg)
}

func (s *meowSession) MarkRead(ctx context.Context, ids []types.MessageID, ts time.Time, chat, sender types.JID, receiptType ...types.ReceiptType) error {
	return s.cli.MarkRead(ctx, ids, ts, chat, sender, receiptType...)
}

func (s *meowSession) IsOnWhatsApp(ctx context.Context, numbers []string) ([]types.IsOnWhatsAppResponse, error) {
	return s.cli.IsOnWhatsApp(ctx, numbers)
}

func (s *meowSession) GetProfilePictureInfo(ctx context.Context, jid types.JID, params *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error) {
	return s.cli.GetProfilePictureInfo(ctx, jid, params)
}

func (s *meowSession) GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	return s.cli.GetGroupInfo(ctx, jid)
}

func (s *meowSession) SendPresence(ctx context.Context, presence types.Presence) error {
	return s.cli.SendPresence(ctx, presence)
}

func (s *meowSession) SendChatPresence(ctx context.Context, jid types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error {
	return s.cli.SendChatPresence(ctx, jid, state, media)
}

func (s *meowSession) SetStatusMessage(ctx context.Context, msg string) error {
	return s.cli.SetStatusMessage(ctx, msg)
}

func (s *meowSession) SetProfilePhoto(ctx context.Context, jpeg []byte) error {
	// Empty JID targets the account's own profile photo.
	_, err := s.cli.SetGroupPhoto(ctx, types.EmptyJID, jpeg)
	return err
}
