package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher sends MQTT messages. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StatusRecorder stores status changes as telemetry. *influxdb.Client
// satisfies it.
type StatusRecorder interface {
	WriteDeviceStatus(code string, on bool, at time.Time)
}

// MemberResolver maps usernames to accounts.
type MemberResolver interface {
	ListByUsernames(ctx context.Context, usernames []string) ([]auth.User, error)
}

// Event types passed to an Observer.
const (
	EventCreated       = "device.created"
	EventUpdated       = "device.updated"
	EventDeleted       = "device.deleted"
	EventStatusChanged = "device.status"
)

// Observer is told about every device change. It receives a copy.
type Observer func(eventType string, d *Device)

// CommandMessage is the payload published on a device's command topic.
type CommandMessage struct {
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`
	Command   string    `json:"command,omitempty"`
	IssuedBy  string    `json:"issuedBy"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusReport is the payload a device publishes on its status topic.
type StatusReport struct {
	Status string `json:"status"`
}

// Service implements device operations with the ownership policy applied.
// All public methods are safe for concurrent use once configured.
type Service struct {
	repo     Repository
	members  MemberResolver
	logger   Logger
	pub      Publisher
	qos      byte
	recorder StatusRecorder
	observer Observer
}

// NewService creates a device service.
func NewService(repo Repository, members MemberResolver) *Service {
	return &Service{
		repo:    repo,
		members: members,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetPublisher enables MQTT command delivery.
func (s *Service) SetPublisher(pub Publisher, qos byte) {
	s.pub = pub
	s.qos = qos
}

// SetStatusRecorder enables status telemetry.
func (s *Service) SetStatusRecorder(r StatusRecorder) {
	s.recorder = r
}

// SetObserver registers the change observer.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Create registers a device owned by the caller and shared with
// req.Usernames.
func (s *Service) Create(ctx context.Context, req Request) (*Device, error) {
	principal := auth.PrincipalFrom(ctx)
	if err := auth.RequirePermission(principal, auth.PermDeviceWrite); err != nil {
		return nil, err
	}
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	memberIDs, err := s.resolveMembers(ctx, req.Usernames)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = StatusOff
	}

	d := &Device{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		IndustryType: req.IndustryType,
		Manufacturer: req.Manufacturer,
		Status:       status,
		Commands:     req.Commands,
		CreatedBy:    principal.ID,
		Members:      auth.WithCreator(principal.ID, memberIDs),
	}
	if d.Commands == nil {
		d.Commands = []CommandDescription{}
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info("device created", "code", d.Code, "name", d.Name, "created_by", d.CreatedBy)
	s.notify(EventCreated, d)
	return d, nil
}

// Get returns a device the caller may access.
func (s *Service) Get(ctx context.Context, code string) (*Device, error) {
	return s.load(ctx, code, auth.PermDeviceRead)
}

func (s *Service) load(ctx context.Context, code string, perm auth.Permission) (*Device, error) {
	principal := auth.PrincipalFrom(ctx)
	if err := auth.RequirePermission(principal, perm); err != nil {
		return nil, err
	}

	d, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Update replaces a device's fields and member list. The creator stays a
// member whatever the request says. An empty status or nil command list
// keeps the current value.
func (s *Service) Update(ctx context.Context, code string, req Request) (*Device, error) {
	d, err := s.load(ctx, code, auth.PermDeviceWrite)
	if err != nil {
		return nil, err
	}
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	memberIDs, err := s.resolveMembers(ctx, req.Usernames)
	if err != nil {
		return nil, err
	}

	d.Name = strings.TrimSpace(req.Name)
	d.Description = req.Description
	d.IndustryType = req.IndustryType
	d.Manufacturer = req.Manufacturer
	if req.Status != "" {
		d.Status = req.Status
	}
	if req.Commands != nil {
		d.Commands = req.Commands
	}
	d.Members = auth.WithCreator(d.CreatedBy, memberIDs)

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info("device updated", "code", d.Code)
	s.notify(EventUpdated, d)
	return d, nil
}

// Delete removes a device and its monitorings.
func (s *Service) Delete(ctx context.Context, code string) error {
	d, err := s.load(ctx, code, auth.PermDeviceWrite)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		return err
	}

	s.logger.Info("device deleted", "code", code)
	s.notify(EventDeleted, d)
	return nil
}

// List returns the devices visible to the caller. Non-admin callers only
// see devices they are members of.
func (s *Service) List(ctx context.Context, filter Filter) (*Page[Device], error) {
	principal := auth.PrincipalFrom(ctx)
	if err := auth.RequirePermission(principal, auth.PermDeviceRead); err != nil {
		return nil, err
	}
	filter.Scope = auth.ScopeFor(principal)
	return s.repo.List(ctx, filter)
}

// SendCommand applies op to a device and publishes it to the device's
// command topic. Delivery failures are logged; the stored status is
// authoritative.
func (s *Service) SendCommand(ctx context.Context, code string, op Operation) (*Device, error) {
	status, err := op.TargetStatus()
	if err != nil {
		return nil, err
	}

	d, err := s.load(ctx, code, auth.PermDeviceCommand)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, code, status); err != nil {
		return nil, err
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()

	s.publishCommand(d, op, auth.PrincipalFrom(ctx))
	s.record(d)
	s.logger.Info("device command applied", "code", code, "operation", op, "status", status)
	s.notify(EventStatusChanged, d)
	return d, nil
}

// ApplyReportedStatus stores a status the device reported itself. It runs
// without a principal.
func (s *Service) ApplyReportedStatus(ctx context.Context, code string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(status))
	}

	d, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if d.Status == status {
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, code, status); err != nil {
		return err
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()

	s.record(d)
	s.logger.Debug("device status reported", "code", code, "status", status)
	s.notify(EventStatusChanged, d)
	return nil
}

// HandleStatusMessage is an mqtt.MessageHandler for AllDeviceStatuses.
// The payload is a StatusReport or a bare "ON"/"OFF".
func (s *Service) HandleStatusMessage(topic string, payload []byte) error {
	code, ok := mqtt.DeviceCodeFromTopic(topic, "status")
	if !ok {
		return fmt.Errorf("unexpected status topic %q", topic)
	}

	raw := strings.TrimSpace(string(payload))
	var report StatusReport
	if err := json.Unmarshal(payload, &report); err == nil && report.Status != "" {
		raw = report.Status
	}

	status, err := ParseStatus(strings.Trim(raw, `"`))
	if err != nil {
		return err
	}

	err = s.ApplyReportedStatus(context.Background(), code, status)
	if errors.Is(err, ErrDeviceNotFound) {
		s.logger.Warn("status report for unknown device", "code", code)
		return nil
	}
	return err
}

func (s *Service) resolveMembers(ctx context.Context, usernames []string) ([]string, error) {
	wanted := make([]string, 0, len(usernames))
	for _, u := range usernames {
		u = strings.TrimSpace(u)
		if u != "" && !slices.Contains(wanted, u) {
			wanted = append(wanted, u)
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	users, err := s.members.ListByUsernames(ctx, wanted)
	if err != nil {
		return nil, fmt.Errorf("resolving members: %w", err)
	}

	found := make(map[string]string, len(users))
	for _, u := range users {
		found[u.Username] = u.ID
	}

	ids := make([]string, 0, len(wanted))
	var missing []string
	for _, name := range wanted {
		id, ok := found[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		ids = append(ids, id)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, strings.Join(missing, ", "))
	}
	return ids, nil
}

func (s *Service) publishCommand(d *Device, op Operation, issuer *auth.User) {
	if s.pub == nil {
		return
	}

	msg := CommandMessage{
		Operation: op,
		Status:    d.Status,
		Timestamp: d.UpdatedAt,
	}
	if issuer != nil {
		msg.IssuedBy = issuer.ID
	}
	for _, c := range d.Commands {
		if strings.EqualFold(c.Operation, string(op)) {
			msg.Command = c.Command.Command
			break
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encoding device command", "code", d.Code, "error", err)
		return
	}
	if err := s.pub.Publish(mqtt.Topics{}.DeviceCommand(d.Code), payload, s.qos, false); err != nil {
		s.logger.Warn("device command not delivered", "code", d.Code, "error", err)
	}
}

func (s *Service) record(d *Device) {
	if s.recorder != nil {
		s.recorder.WriteDeviceStatus(d.Code, d.Status == StatusOn, d.UpdatedAt)
	}
}

func (s *Service) notify(eventType string, d *Device) {
	if s.observer != nil {
		s.observer(eventType, d.DeepCopy())
	}
}
