package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Request is an outbound envelope. Scope fields are populated by the
// session layer before sending; kind-specific fields come from the
// validated builder.
type Request struct {
	ID       uint64
	Name     string
	ReSent   bool
	Token    string
	GameID   string
	GameRole string
	Phase    string
	Fields   map[string]any

	spec RequestSpec
}

// Build constructs a request of the given kind, merging the kind's field
// template with the caller overrides. Unknown field names are rejected
// rather than silently kept, and a fresh id is assigned when absent.
func (r *Registry) Build(kind string, overrides map[string]any) (*Request, error) {
	spec, ok := r.requests[kind]
	if !ok {
		return nil, unknownKind(kind)
	}

	allowed := make(map[string]struct{}, len(spec.Required)+len(spec.Optional))
	for _, name := range spec.Required {
		allowed[name] = struct{}{}
	}
	for _, name := range spec.Optional {
		allowed[name] = struct{}{}
	}

	fields := make(map[string]any, len(overrides))
	var unknown []string
	for name, value := range overrides {
		if _, ok := allowed[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		fields[name] = value
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("request %q does not accept fields %v", kind, unknown)
	}
	for _, name := range spec.Required {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("request %q is missing required field %q", kind, name)
		}
	}

	return &Request{
		ID:     r.NextID(),
		Name:   kind,
		Fields: fields,
		spec:   spec,
	}, nil
}

// Spec exposes the registry entry the request was built from.
func (req *Request) Spec() RequestSpec {
	return req.spec
}

// Validate checks that the scope fields required by the request kind are
// populated. Game-scoped requests always carry the phase the client
// believed current at send time.
func (req *Request) Validate() error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	switch req.spec.Scope {
	case ScopeGame:
		if req.GameID == "" || req.GameRole == "" {
			return fmt.Errorf("request %q requires game id and role", req.Name)
		}
		if req.Phase == "" {
			return fmt.Errorf("request %q requires the current phase", req.Name)
		}
		fallthrough
	case ScopeSession:
		if req.Token == "" {
			return fmt.Errorf("request %q requires a session token", req.Name)
		}
	}
	return nil
}

// MarshalJSON flattens the envelope into a single wire object.
func (req *Request) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, len(req.Fields)+7)
	for name, value := range req.Fields {
		payload[name] = value
	}
	payload["id"] = req.ID
	payload["name"] = req.Name
	payload["re_sent"] = req.ReSent
	if req.spec.Scope >= ScopeSession {
		payload["token"] = req.Token
	}
	if req.spec.Scope == ScopeGame {
		payload["game_id"] = req.GameID
		payload["game_role"] = req.GameRole
		payload["phase"] = req.Phase
	}
	return json.Marshal(payload)
}
