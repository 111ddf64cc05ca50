package wa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

// Button is one quick-reply option shown under a message.
type Button struct {
	ID    string
	Label string
}

// ListRow is one selectable row inside a list section.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a heading in an interactive list.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// SendText sends a plain text message to the given phone number.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	message := &waProto.Message{
		Conversation: proto.String(text),
	}
	if _, err := c.client.SendMessage(ctx, toJID(phone), message); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	c.countOutbound("text")
	return nil
}

// SendButtons sends a message with up to three quick-reply buttons.
func (c *Client) SendButtons(ctx context.Context, phone, body string, buttons []Button) error {
	if len(buttons) == 0 {
		return c.SendText(ctx, phone, body)
	}

	protoButtons := make([]*waProto.ButtonsMessage_Button, 0, len(buttons))
	for _, b := range buttons {
		protoButtons = append(protoButtons, &waProto.ButtonsMessage_Button{
			ButtonID: proto.String(b.ID),
			ButtonText: &waProto.ButtonsMessage_Button_ButtonText{
				DisplayText: proto.String(b.Label),
			},
			Type: waProto.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}

	message := &waProto.Message{
		ButtonsMessage: &waProto.ButtonsMessage{
			ContentText: proto.String(body),
			Buttons:     protoButtons,
			HeaderType:  waProto.ButtonsMessage_EMPTY.Enum(),
		},
	}
	if _, err := c.client.SendMessage(ctx, toJID(phone), message); err != nil {
		return fmt.Errorf("send buttons: %w", err)
	}
	c.countOutbound("buttons")
	return nil
}

// SendList sends a single-select interactive list message.
func (c *Client) SendList(ctx context.Context, phone, body, action string, sections []ListSection) error {
	protoSections := make([]*waProto.ListMessage_Section, 0, len(sections))
	for _, s := range sections {
		rows := make([]*waProto.ListMessage_Row, 0, len(s.Rows))
		for _, r := range s.Rows {
			row := &waProto.ListMessage_Row{
				RowID: proto.String(r.ID),
				Title: proto.String(r.Title),
			}
			if r.Description != "" {
				row.Description = proto.String(r.Description)
			}
			rows = append(rows, row)
		}
		protoSections = append(protoSections, &waProto.ListMessage_Section{
			Title: proto.String(s.Title),
			Rows:  rows,
		})
	}

	message := &waProto.Message{
		ListMessage: &waProto.ListMessage{
			Description: proto.String(body),
			ButtonText:  proto.String(action),
			ListType:    waProto.ListMessage_SINGLE_SELECT.Enum(),
			Sections:    protoSections,
		},
	}
	if _, err := c.client.SendMessage(ctx, toJID(phone), message); err != nil {
		return fmt.Errorf("send list: %w", err)
	}
	c.countOutbound("list")
	return nil
}

// SendImage sends a previously stored image by media reference with a caption.
func (c *Client) SendImage(ctx context.Context, phone, mediaRef, caption string) error {
	data, err := c.ReadMedia(mediaRef)
	if err != nil {
		return err
	}
	mime := http.DetectContentType(data)

	uploadResp, err := c.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}

	imageMsg := &waProto.ImageMessage{
		URL:           proto.String(uploadResp.URL),
		DirectPath:    proto.String(uploadResp.DirectPath),
		MediaKey:      uploadResp.MediaKey,
		FileEncSHA256: uploadResp.FileEncSHA256,
		FileSHA256:    uploadResp.FileSHA256,
		FileLength:    proto.Uint64(uploadResp.FileLength),
		Mimetype:      proto.String(mime),
	}
	if caption != "" {
		imageMsg.Caption = proto.String(caption)
	}

	if _, err := c.client.SendMessage(ctx, toJID(phone), &waProto.Message{ImageMessage: imageMsg}); err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	c.countOutbound("image")
	return nil
}

// SendVideo sends a previously stored video by media reference with a caption.
func (c *Client) SendVideo(ctx context.Context, phone, mediaRef, caption string) error {
	data, err := c.ReadMedia(mediaRef)
	if err != nil {
		return err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "video/") {
		mime = "video/mp4"
	}

	uploadResp, err := c.client.Upload(ctx, data, whatsmeow.MediaVideo)
	if err != nil {
		return fmt.Errorf("upload video: %w", err)
	}

	videoMsg := &waProto.VideoMessage{
		URL:           proto.String(uploadResp.URL),
		DirectPath:    proto.String(uploadResp.DirectPath),
		MediaKey:      uploadResp.MediaKey,
		FileEncSHA256: uploadResp.FileEncSHA256,
		FileSHA256:    uploadResp.FileSHA256,
		FileLength:    proto.Uint64(uploadResp.FileLength),
		Mimetype:      proto.String(mime),
	}
	if caption != "" {
		videoMsg.Caption = proto.String(caption)
	}

	if _, err := c.client.SendMessage(ctx, toJID(phone), &waProto.Message{VideoMessage: videoMsg}); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	c.countOutbound("video")
	return nil
}

// SendMedia sends stored media choosing image or video from its content type.
func (c *Client) SendMedia(ctx context.Context, phone, mediaRef, caption string) error {
	if mediaRef == "" {
		return errors.New("send media: empty reference")
	}
	if strings.HasSuffix(mediaRef, ".mp4") {
		return c.SendVideo(ctx, phone, mediaRef, caption)
	}
	return c.SendImage(ctx, phone, mediaRef, caption)
}

func (c *Client) countOutbound(kind string) {
	if c.metrics != nil {
		c.metrics.OutboundMessages.WithLabelValues(kind).Inc()
	}
}
