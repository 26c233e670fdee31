package modules

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	_ "golang.org/x/image/webp" // decode suporte para WebP
	"google.golang.org/protobuf/proto"
)

// Outbound content kinds.
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentAudio    = "audio"
	ContentDocument = "document"
	ContentRaw      = "raw"
)

// Content is what a caller wants delivered. Text doubles as the caption for
// media kinds. Raw carries a pre-built protocol payload untouched.
type Content struct {
	Kind     string
	Text     string
	Data     []byte
	FileName string
	MimeType string
	Raw      *waE2E.Message
}

// QuotedRef points a send at the message it replies to.
type QuotedRef struct {
	MessageID string
	Sender    string
	Text      string
}

// SendOptions tweak a single delivery.
type SendOptions struct {
	Quoted *QuotedRef
	// EditID rewrites a previously sent message instead of sending a new one.
	EditID string
}

// buildMessage maps Content into the network payload shape, uploading media
// first when needed.
func buildMessage(ctx context.Context, s Session, c Content) (*waE2E.Message, error) {
	switch c.Kind {
	case ContentRaw:
		if c.Raw == nil {
			return nil, fmt.Errorf("conteúdo raw sem payload")
		}
		return c.Raw, nil
	case "", ContentText:
		return &waE2E.Message{Conversation: proto.String(c.Text)}, nil
	case ContentImage:
		return buildImageMessage(ctx, s, c)
	case ContentAudio:
		return buildAudioMessage(ctx, s, c)
	case ContentDocument:
		return buildDocumentMessage(ctx, s, c)
	}
	return nil, fmt.Errorf("tipo de conteúdo desconhecido: %s", c.Kind)
}

func buildImageMessage(ctx context.Context, s Session, c Content) (*waE2E.Message, error) {
	data := c.Data
	mimeType := sniffMime(c)
	if mimeType == "image/webp" {
		// WhatsApp renders stickers from webp; plain images go out as jpeg.
		converted, err := webpToJPEG(data)
		if err != nil {
			return nil, fmt.Errorf("convertendo webp: %w", err)
		}
		data = converted
		mimeType = "image/jpeg"
	}
	resp, err := s.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return nil, fmt.Errorf("upload da imagem: %w", err)
	}
	return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(c.Text),
		Mimetype:      proto.String(mimeType),
		URL:           &resp.URL,
		DirectPath:    &resp.DirectPath,
		MediaKey:      resp.MediaKey,
		FileEncSHA256: resp.FileEncSHA256,
		FileSHA256:    resp.FileSHA256,
		FileLength:    &resp.FileLength,
	}}, nil
}

func buildAudioMessage(ctx context.Context, s Session, c Content) (*waE2E.Message, error) {
	mimeType := sniffMime(c)
	if strings.HasSuffix(c.FileName, ".mp3") {
		mimeType = "audio/mpeg"
	}
	resp, err := s.Upload(ctx, c.Data, whatsmeow.MediaAudio)
	if err != nil {
		return nil, fmt.Errorf("upload do áudio: %w", err)
	}
	return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
		Mimetype:      proto.String(mimeType),
		PTT:           proto.Bool(true),
		URL:           &resp.URL,
		DirectPath:    &resp.DirectPath,
		MediaKey:      resp.MediaKey,
		FileEncSHA256: resp.FileEncSHA256,
		FileSHA256:    resp.FileSHA256,
		FileLength:    &resp.FileLength,
	}}, nil
}

func buildDocumentMessage(ctx context.Context, s Session, c Content) (*waE2E.Message, error) {
	mimeType := sniffMime(c)
	// filetype não reconhece formatos office pelo magic number
	if strings.HasSuffix(c.FileName, ".docx") {
		mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if strings.HasSuffix(c.FileName, ".xlsx") {
		mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	resp, err := s.Upload(ctx, c.Data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("upload do documento: %w", err)
	}
	title := strings.TrimSuffix(c.FileName, filepath.Ext(c.FileName))
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Title:         proto.String(title),
		FileName:      proto.String(c.FileName),
		Caption:       proto.String(c.Text),
		Mimetype:      proto.String(mimeType),
		URL:           &resp.URL,
		DirectPath:    &resp.DirectPath,
		MediaKey:      resp.MediaKey,
		FileEncSHA256: resp.FileEncSHA256,
		FileSHA256:    resp.FileSHA256,
		FileLength:    &resp.FileLength,
	}}, nil
}

func sniffMime(c Content) string {
	if c.MimeType != "" {
		return c.MimeType
	}
	kind, _ := filetype.Match(c.Data)
	if kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

func webpToJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// extractText walks the places the network hides text in.
func extractText(msg *waE2E.Message) string {
	text := msg.GetConversation()
	if text == "" {
		text = msg.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		text = msg.GetImageMessage().GetCaption()
	}
	if text == "" {
		text = msg.GetVideoMessage().GetCaption()
	}
	if text == "" {
		text = msg.GetDocumentMessage().GetCaption()
	}
	if text == "" {
		text = msg.GetProtocolMessage().GetEditedMessage().GetConversation()
	}
	return text
}

func classifyKind(msg *waE2E.Message) string {
	switch {
	case msg.GetImageMessage() != nil:
		return KindImage
	case msg.GetVideoMessage() != nil:
		return KindVideo
	case msg.GetAudioMessage() != nil:
		return KindAudio
	case msg.GetStickerMessage() != nil:
		return KindSticker
	case msg.GetDocumentMessage() != nil:
		return KindDocument
	case msg.GetContactMessage() != nil:
		return KindContact
	}
	return KindText
}

// downloadMedia pulls the media payload of an inbound event, honoring the
// auto-download settings. Any failure leaves the payload nil; the event is
// still dispatched.
func downloadMedia(ctx context.Context, s Session, evt *events.Message, cfg *Settings) *MediaPayload {
	var (
		dl       whatsmeow.DownloadableMessage
		mimeType string
	)
	msg := evt.Message
	switch {
	case msg.GetImageMessage() != nil && cfg.AutoDownloadMedia:
		dl, mimeType = msg.GetImageMessage(), msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil && cfg.AutoDownloadMedia:
		dl, mimeType = msg.GetVideoMessage(), msg.GetVideoMessage().GetMimetype()
	case msg.GetAudioMessage() != nil && cfg.AutoDownloadMedia:
		dl, mimeType = msg.GetAudioMessage(), msg.GetAudioMessage().GetMimetype()
	case msg.GetStickerMessage() != nil && cfg.AutoDownloadMedia:
		dl, mimeType = msg.GetStickerMessage(), msg.GetStickerMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil && cfg.AutoDownloadDocuments:
		dl, mimeType = msg.GetDocumentMessage(), msg.GetDocumentMessage().GetMimetype()
	}
	if dl == nil {
		return nil
	}
	data, err := s.Download(ctx, dl)
	if err != nil {
		return nil
	}
	return &MediaPayload{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}
