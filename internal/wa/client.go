package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"marketbot/internal/metrics"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"
)

// Config holds configuration to initialise the WhatsApp client.
type Config struct {
	StorePath string
	LogLevel  string
	MediaDir  string
	Metrics   *metrics.Metrics
}

// EventKind identifies the normalized shape of an inbound event.
type EventKind string

const (
	EventText   EventKind = "text"
	EventButton EventKind = "button"
	EventMedia  EventKind = "media"
)

// Event is a normalized inbound message handed to the processor. Identity is
// the bare phone number of the sender.
type Event struct {
	Kind      EventKind
	Phone     string
	PushName  string
	Text      string
	ButtonID  string
	MediaRef  string
	MediaMIME string
	Caption   string
}

// EventProcessor consumes normalized inbound events.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, evt Event)
}

// Client wraps the WhatsMeow client and associated dependencies.
type Client struct {
	client    *whatsmeow.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	mediaDir  string
	processor EventProcessor
}

// New creates a new WhatsApp client instance backed by an SQLite store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}

	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	mediaDir := cfg.MediaDir
	if mediaDir == "" {
		mediaDir = "data/media"
	}
	if err := ensureDir(mediaDir); err != nil {
		return nil, fmt.Errorf("ensure media dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &Client{
		client:   client,
		logger:   logger.With("component", "wa"),
		metrics:  cfg.Metrics,
		mediaDir: mediaDir,
	}
	client.AddEventHandler(wc.handleEvent)

	return wc, nil
}

// Start connects the client and handles login/QR pairing flow.
func (c *Client) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}

	c.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the WhatsApp client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

// SetEventProcessor registers the inbound event consumer.
func (c *Client) SetEventProcessor(processor EventProcessor) {
	c.processor = processor
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	msg := evt.Message
	if msg == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	normalized, ok := c.normalize(evt)
	if !ok {
		c.logger.Info("ignoring unsupported message type", "from", evt.Info.Sender.String())
		return
	}

	if c.metrics != nil {
		c.metrics.InboundEvents.WithLabelValues(string(normalized.Kind)).Inc()
	}
	if c.processor != nil {
		go c.processor.ProcessEvent(context.Background(), normalized)
	}
}

// normalize flattens the many WhatsApp message shapes into one Event. Button,
// list and template replies all surface as EventButton with the selected id.
func (c *Client) normalize(evt *events.Message) (Event, bool) {
	msg := evt.Message
	out := Event{
		Phone:    evt.Info.Sender.User,
		PushName: strings.TrimSpace(evt.Info.PushName),
	}

	switch {
	case msg.GetConversation() != "":
		out.Kind = EventText
		out.Text = msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		out.Kind = EventText
		out.Text = msg.GetExtendedTextMessage().GetText()
	case msg.ButtonsResponseMessage != nil:
		out.Kind = EventButton
		out.ButtonID = msg.GetButtonsResponseMessage().GetSelectedButtonID()
	case msg.ListResponseMessage != nil:
		out.Kind = EventButton
		out.ButtonID = msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()
	case msg.TemplateButtonReplyMessage != nil:
		out.Kind = EventButton
		out.ButtonID = msg.GetTemplateButtonReplyMessage().GetSelectedID()
	case msg.ImageMessage != nil:
		out.Kind = EventMedia
		out.Caption = msg.GetImageMessage().GetCaption()
		ref, mime, err := c.storeMedia(context.Background(), msg)
		if err != nil {
			c.logger.Warn("store inbound image failed", "error", err)
			return out, false
		}
		out.MediaRef, out.MediaMIME = ref, mime
	case msg.VideoMessage != nil:
		out.Kind = EventMedia
		out.Caption = msg.GetVideoMessage().GetCaption()
		ref, mime, err := c.storeMedia(context.Background(), msg)
		if err != nil {
			c.logger.Warn("store inbound video failed", "error", err)
			return out, false
		}
		out.MediaRef, out.MediaMIME = ref, mime
	case msg.DocumentMessage != nil:
		out.Kind = EventMedia
		out.Caption = msg.GetDocumentMessage().GetCaption()
		ref, mime, err := c.storeMedia(context.Background(), msg)
		if err != nil {
			c.logger.Warn("store inbound document failed", "error", err)
			return out, false
		}
		out.MediaRef, out.MediaMIME = ref, mime
	default:
		return out, false
	}

	if out.ButtonID == "" && out.Kind == EventButton {
		return out, false
	}
	return out, true
}

// storeMedia downloads message media to the media directory and returns the
// stored file name as an opaque reference.
func (c *Client) storeMedia(ctx context.Context, msg *waProto.Message) (string, string, error) {
	data, err := c.client.DownloadAny(ctx, msg)
	if err != nil {
		return "", "", fmt.Errorf("download media: %w", err)
	}

	mime := "application/octet-stream"
	switch {
	case msg.ImageMessage != nil:
		if m := msg.ImageMessage.GetMimetype(); m != "" {
			mime = m
		}
	case msg.VideoMessage != nil:
		if m := msg.VideoMessage.GetMimetype(); m != "" {
			mime = m
		}
	case msg.DocumentMessage != nil:
		if m := msg.DocumentMessage.GetMimetype(); m != "" {
			mime = m
		}
	}

	name := uuid.NewString() + extensionFor(mime)
	path := filepath.Join(c.mediaDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write media file: %w", err)
	}
	return name, mime, nil
}

// ReadMedia loads previously stored media by reference.
func (c *Client) ReadMedia(ref string) ([]byte, error) {
	clean := filepath.Base(ref)
	data, err := os.ReadFile(filepath.Join(c.mediaDir, clean))
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", clean, err)
	}
	return data, nil
}

func extensionFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mime, "image/png"):
		return ".png"
	case strings.HasPrefix(mime, "image/webp"):
		return ".webp"
	case strings.HasPrefix(mime, "video/"):
		return ".mp4"
	case strings.HasPrefix(mime, "application/pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}

func toJID(phone string) types.JID {
	return types.NewJID(strings.TrimPrefix(phone, "+"), types.DefaultUserServer)
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
