package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"admindash/internal/models"
	"admindash/internal/service/notify"
	"admindash/internal/service/users"
)

const (
	DefaultEmailSubject = "Notification from Admin Dashboard"
	DefaultEmailBody    = "No message content provided."
)

// UserStore is the record store the dispatcher writes through.
type UserStore interface {
	Create(ctx context.Context, in users.CreateInput) (*models.User, error)
	Update(ctx context.Context, id uint, patch users.Patch) (*models.User, error)
	Get(ctx context.Context, id uint) (*models.User, error)
}

// Mailer delivers sendEmail actions.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) (*notify.SendResult, error)
}

// ChangeNotifier is told about successful user writes.
type ChangeNotifier interface {
	NotifyUserChange(ctx context.Context, user *models.User, kind notify.ChangeKind) error
}

// Result is the outcome of one executed action.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	User    *models.User    `json:"user,omitempty"`
	Users   json.RawMessage `json:"users,omitempty"`
	Result  any             `json:"result,omitempty"`
}

type Dispatcher struct {
	store    UserStore
	mailer   Mailer
	notifier ChangeNotifier
	logger   *zap.Logger
	now      func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithNotifier enables admin notices after create, update and delete.
func WithNotifier(n ChangeNotifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp soft deletes.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDispatcher(store UserStore, mailer Mailer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		mailer: mailer,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs a single action. Collaborator errors and panics are turned
// into a failed Result; Execute itself never fails.
func (d *Dispatcher) Execute(ctx context.Context, action Action, snapshot json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action panicked", zap.String("action", kindOf(action)), zap.Any("panic", r))
			res = Result{Success: false, Error: fmt.Sprint(r)}
		}
	}()

	switch a := action.(type) {
	case SendEmail:
		return d.sendEmail(ctx, a)
	case ListUsers:
		return listUsers(snapshot)
	case CreateUser:
		return d.createUser(ctx, a)
	case UpdateUser:
		return d.updateUser(ctx, a)
	case DeleteUser:
		return d.deleteUser(ctx, a)
	case GetUser:
		return d.getUser(ctx, a)
	default:
		return Result{Success: false, Message: "Unknown action type"}
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, a SendEmail) Result {
	if strings.TrimSpace(a.To) == "" {
		return Result{Success: false, Error: "Recipient is required"}
	}
	subject := a.Subject
	if subject == "" {
		subject = DefaultEmailSubject
	}
	body := a.Body
	if body == "" {
		body = DefaultEmailBody
	}
	sent, err := d.mailer.Send(ctx, a.To, subject, body)
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, Message: "Email sent successfully", Result: sent}
}

func listUsers(snapshot json.RawMessage) Result {
	trimmed := strings.TrimSpace(string(snapshot))
	if trimmed == "" || trimmed == "null" {
		snapshot = json.RawMessage("[]")
	}
	return Result{Success: true, Users: snapshot}
}

func (d *Dispatcher) createUser(ctx context.Context, a CreateUser) Result {
	// every check runs; the last one that fails is reported
	var missing string
	if strings.TrimSpace(a.Email) == "" {
		missing = "Email"
	}
	if strings.TrimSpace(a.Name) == "" {
		missing = "Name"
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = "Phone"
	}
	if missing != "" {
		return Result{Success: false, Error: missing + " is required"}
	}

	user, err := d.store.Create(ctx, users.CreateInput{Name: a.Name, Email: a.Email, Phone: a.Phone})
	if err != nil {
		return failure(err)
	}
	d.notify(ctx, user, notify.ChangeCreated)
	return Result{Success: true, Message: "User created successfully", User: user}
}

func (d *Dispatcher) updateUser(ctx context.Context, a UpdateUser) Result {
	if a.ID == 0 {
		return Result{Success: false, Error: "User ID is required"}
	}
	user, err := d.store.Update(ctx, a.ID, users.Patch{Name: a.Name, Email: a.Email, Phone: a.Phone})
	if err != nil {
		return failure(err)
	}
	d.notify(ctx, user, notify.ChangeUpdated)
	return Result{Success: true, Message: "User updated successfully", User: user}
}

func (d *Dispatcher) deleteUser(ctx context.Context, a DeleteUser) Result {
	if a.ID == 0 {
		return Result{Success: false, Error: "User ID is required"}
	}
	now := d.now().UTC()
	user, err := d.store.Update(ctx, a.ID, users.Patch{DeletedAt: &now})
	if err != nil {
		return failure(err)
	}
	d.notify(ctx, user, notify.ChangeDeleted)
	return Result{Success: true, Message: "User deleted successfully", User: user}
}

func (d *Dispatcher) getUser(ctx context.Context, a GetUser) Result {
	if a.ID == 0 {
		return Result{Success: false, Error: "User ID is required"}
	}
	user, err := d.store.Get(ctx, a.ID)
	if errors.Is(err, users.ErrNotFound) || (err == nil && user == nil) {
		return Result{Success: false, Message: "User not found"}
	}
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, User: user}
}

func (d *Dispatcher) notify(ctx context.Context, user *models.User, kind notify.ChangeKind) {
	if d.notifier == nil || user == nil {
		return
	}
	if err := d.notifier.NotifyUserChange(ctx, user, kind); err != nil {
		d.logger.Warn("user change notification failed",
			zap.Uint("user_id", user.ID),
			zap.String("change", string(kind)),
			zap.Error(err))
	}
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

func kindOf(action Action) string {
	if action == nil {
		return ""
	}
	return action.Kind()
}
