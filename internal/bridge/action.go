package bridge

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Action is one instruction decoded from a model reply.
type Action interface {
	Kind() string
	action()
}

const (
	KindSendEmail  = "sendEmail"
	KindListUsers  = "listUsers"
	KindCreateUser = "createUser"
	KindUpdateUser = "updateUser"
	KindDeleteUser = "deleteUser"
	KindGetUser    = "getUser"
)

type SendEmail struct {
	To      string
	Subject string
	Body    string
}

type ListUsers struct{}

type CreateUser struct {
	Name  string
	Email string
	Phone string
}

// UpdateUser carries only the fields the model supplied.
type UpdateUser struct {
	ID    uint
	Name  *string
	Email *string
	Phone *string
}

type DeleteUser struct {
	ID uint
}

type GetUser struct {
	ID uint
}

// Unknown is any block whose action name is missing or unsupported.
type Unknown struct {
	Name string
}

func (SendEmail) Kind() string  { return KindSendEmail }
func (ListUsers) Kind() string  { return KindListUsers }
func (CreateUser) Kind() string { return KindCreateUser }
func (UpdateUser) Kind() string { return KindUpdateUser }
func (DeleteUser) Kind() string { return KindDeleteUser }
func (GetUser) Kind() string    { return KindGetUser }
func (u Unknown) Kind() string  { return u.Name }

func (SendEmail) action()  {}
func (ListUsers) action()  {}
func (CreateUser) action() {}
func (UpdateUser) action() {}
func (DeleteUser) action() {}
func (GetUser) action()    {}
func (Unknown) action()    {}

type wireAction struct {
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters"`
}

type params map[string]json.RawMessage

// DecodeAction maps a {"action", "parameters"} object onto its variant.
// Parameters of the wrong type are treated as absent.
func DecodeAction(raw json.RawMessage) Action {
	var wire wireAction
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Unknown{}
	}
	var p params
	if len(wire.Parameters) > 0 {
		// non-object parameters decode to nothing
		_ = json.Unmarshal(wire.Parameters, &p)
	}

	switch wire.Action {
	case KindSendEmail:
		return SendEmail{
			To:      p.str("to"),
			Subject: p.str("subject"),
			Body:    p.str("body"),
		}
	case KindListUsers:
		return ListUsers{}
	case KindCreateUser:
		return CreateUser{
			Name:  p.str("name"),
			Email: p.str("email"),
			Phone: p.str("phone"),
		}
	case KindUpdateUser:
		return UpdateUser{
			ID:    p.id(),
			Name:  p.optional("name"),
			Email: p.optional("email"),
			Phone: p.optional("phone"),
		}
	case KindDeleteUser:
		return DeleteUser{ID: p.id()}
	case KindGetUser:
		return GetUser{ID: p.id()}
	default:
		return Unknown{Name: wire.Action}
	}
}

func (p params) optional(key string) *string {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	// phone numbers sometimes arrive unquoted
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s
	}
	return nil
}

func (p params) str(key string) string {
	if v := p.optional(key); v != nil {
		return *v
	}
	return ""
}

// id accepts 7 or "7". Anything else counts as missing.
func (p params) id() uint {
	v := p.optional("id")
	if v == nil {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(*v), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
