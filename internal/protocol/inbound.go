package protocol

import (
	"encoding/json"
	"fmt"
)

// Response correlates back to an outbound request via RequestID.
type Response struct {
	Name      string
	RequestID uint64
	Data      json.RawMessage
	// Extra holds response fields beyond the base vocabulary, consumed
	// by kind-specific handlers.
	Extra map[string]json.RawMessage
}

// Notification is a fire-and-forget inbound message with no correlation
// id; its routing scope is statically known from its name.
type Notification struct {
	Name           string
	NotificationID uint64
	Token          string
	GameID         string
	GameRole       string
	Scope          Scope
	Payload        map[string]json.RawMessage
}

// ServerError is raised when an inbound frame embeds an error payload.
// RequestID, when non-zero, names the request the server rejected.
type ServerError struct {
	Code      string
	Message   string
	RequestID uint64
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server error: %s", e.Message)
}

// Inbound is the classified result of parsing one wire frame: exactly
// one of Response or Notification is set.
type Inbound struct {
	Response     *Response
	Notification *Notification
}

var baseResponseFields = map[string]struct{}{
	"name": {}, "request_id": {}, "data": {},
}

// Parse validates and classifies an inbound JSON frame. Frames carrying a
// request_id are responses and must use a registered response name; an
// embedded error payload surfaces as *ServerError. Everything else must
// be a registered notification name.
func (r *Registry) Parse(raw []byte) (*Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("inbound frame is not a JSON object: %w", err)
	}

	var name string
	if rawName, ok := fields["name"]; ok {
		if err := json.Unmarshal(rawName, &name); err != nil {
			return nil, fmt.Errorf("inbound frame has non-string name: %w", err)
		}
	}
	if name == "" {
		return nil, fmt.Errorf("inbound frame is missing a name")
	}

	if rawID, ok := fields["request_id"]; ok {
		return r.parseResponse(name, rawID, fields)
	}
	return r.parseNotification(name, fields)
}

func (r *Registry) parseResponse(name string, rawID json.RawMessage, fields map[string]json.RawMessage) (*Inbound, error) {
	if !r.ResponseKnown(name) {
		return nil, unknownKind(name)
	}
	var requestID uint64
	if err := json.Unmarshal(rawID, &requestID); err != nil {
		return nil, fmt.Errorf("response %q has malformed request_id: %w", name, err)
	}
	if name == ResponseError {
		serr := decodeServerError(fields)
		serr.RequestID = requestID
		return nil, serr
	}

	resp := &Response{Name: name, RequestID: requestID}
	if data, ok := fields["data"]; ok {
		resp.Data = data
	}
	for key, value := range fields {
		if _, base := baseResponseFields[key]; base {
			continue
		}
		if resp.Extra == nil {
			resp.Extra = make(map[string]json.RawMessage)
		}
		resp.Extra[key] = value
	}
	return &Inbound{Response: resp}, nil
}

func (r *Registry) parseNotification(name string, fields map[string]json.RawMessage) (*Inbound, error) {
	scope, ok := r.NotificationScope(name)
	if !ok {
		return nil, unknownKind(name)
	}

	notif := &Notification{Name: name, Scope: scope, Payload: make(map[string]json.RawMessage)}
	for key, value := range fields {
		switch key {
		case "name":
		case "notification_id":
			if err := json.Unmarshal(value, &notif.NotificationID); err != nil {
				return nil, fmt.Errorf("notification %q has malformed notification_id: %w", name, err)
			}
		case "token":
			if err := json.Unmarshal(value, &notif.Token); err != nil {
				return nil, fmt.Errorf("notification %q has malformed token: %w", name, err)
			}
		case "game_id":
			if err := json.Unmarshal(value, &notif.GameID); err != nil {
				return nil, fmt.Errorf("notification %q has malformed game_id: %w", name, err)
			}
		case "game_role":
			if err := json.Unmarshal(value, &notif.GameRole); err != nil {
				return nil, fmt.Errorf("notification %q has malformed game_role: %w", name, err)
			}
		default:
			notif.Payload[key] = value
		}
	}

	if scope == ScopeGame && (notif.GameID == "" || notif.GameRole == "") {
		return nil, fmt.Errorf("game notification %q is missing game_id or game_role", name)
	}
	return &Inbound{Notification: notif}, nil
}

func decodeServerError(fields map[string]json.RawMessage) *ServerError {
	serr := &ServerError{}
	if raw, ok := fields["message"]; ok {
		_ = json.Unmarshal(raw, &serr.Message)
	}
	if raw, ok := fields["code"]; ok {
		_ = json.Unmarshal(raw, &serr.Code)
	}
	if serr.Message == "" {
		if raw, ok := fields["error"]; ok {
			_ = json.Unmarshal(raw, &serr.Message)
		}
	}
	return serr
}

// DefaultData applies the catalog's default response interpretation: the
// ok sentinel yields no data, a bare data response yields its payload
// verbatim, and anything else is left for a kind-specific handler.
func (resp *Response) DefaultData() (json.RawMessage, bool) {
	if resp == nil {
		return nil, false
	}
	if resp.Name == ResponseOK {
		return nil, true
	}
	if len(resp.Extra) == 0 && resp.Data != nil {
		return resp.Data, true
	}
	return nil, false
}
