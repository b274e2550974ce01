package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"tempchat/internal/app/chat"
	"tempchat/internal/pkg/errs"
)

// Inbound operation types.
const (
	OpCreateMessage = "create_message"
	OpStartTyping   = "start_typing"
	OpStopTyping    = "stop_typing"
	OpUpdateProfile = "update_profile"
	OpDeleteMessage = "delete_message"
)

// inboundFrame is a client request. Token is echoed in any resulting error event and in
// the message_created broadcast.
type inboundFrame struct {
	Type    string          `json:"type"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createPayload struct {
	Content string       `json:"content"`
	Image   string       `json:"image,omitempty"`
	TTL     chat.TTLSpec `json:"ttl"`
}

type profilePayload struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

type deletePayload struct {
	ID int64 `json:"id"`
}

// Dispatcher routes inbound frames of one admitted session to the chat service.
type Dispatcher struct {
	service *chat.Service
	session *chat.Session
	hub     chat.Hub
	now     func() time.Time
}

// NewDispatcher binds a session to the service. Rejections are sent back to the session's
// handle through hub.
func NewDispatcher(service *chat.Service, session *chat.Session, hub chat.Hub) *Dispatcher {
	return &Dispatcher{
		service: service,
		session: session,
		hub:     hub,
		now:     time.Now,
	}
}

// Handle decodes and executes one frame.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		d.reject(errs.NewError(errs.ErrInvalidJSONFormat), "")
		return
	}

	if customErr := d.dispatch(ctx, in); customErr != nil {
		d.reject(customErr, in.Token)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, in inboundFrame) *errs.CustomError {
	switch in.Type {
	case OpCreateMessage:
		var p createPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errs.NewError(errs.ErrInvalidParams)
		}

		// A bad encoding is reported by the core, after flood control.
		image, err := decodeImage(p.Image)
		if err != nil {
			image = nil
		}

		_, customErr := d.service.CreateMessage(ctx, d.session, chat.Draft{
			Content:          p.Content,
			Image:            image,
			TTL:              p.TTL,
			Token:            in.Token,
			ImageUndecodable: err != nil,
		}, d.now())
		return customErr

	case OpStartTyping:
		d.service.SetTyping(d.session, true)
		return nil

	case OpStopTyping:
		d.service.SetTyping(d.session, false)
		return nil

	case OpUpdateProfile:
		var p profilePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errs.NewError(errs.ErrInvalidParams)
		}

		_, customErr := d.service.UpdateProfile(ctx, d.session.Identity, p.Name, p.Color)
		return customErr

	case OpDeleteMessage:
		var p deletePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ID <= 0 {
			return errs.NewError(errs.ErrInvalidParams)
		}

		return d.service.DeleteMessage(ctx, d.session.Identity, p.ID, d.now())

	default:
		return errs.NewError(errs.ErrInvalidParams)
	}
}

func (d *Dispatcher) reject(customErr *errs.CustomError, token string) {
	d.hub.SendTo(d.session.Handle, chat.EventError, chat.ErrorPayload{
		Code:    customErr.Code,
		Message: customErr.Message,
		Token:   token,
	})
}

// decodeImage accepts plain base64 or a data URL. An empty string means no image.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}

	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}

	return base64.StdEncoding.DecodeString(encoded)
}
