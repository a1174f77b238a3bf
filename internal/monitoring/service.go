package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
)

// DeviceLookup resolves a device the caller may access.
// *device.Service satisfies it.
type DeviceLookup interface {
	Get(ctx context.Context, code string) (*device.Device, error)
}

// StatusRecorder stores status changes as telemetry.
type StatusRecorder interface {
	WriteMonitoringStatus(code, deviceCode string, on bool, at time.Time)
}

// Event types passed to an Observer.
const (
	EventCreated = "monitoring.created"
	EventUpdated = "monitoring.updated"
	EventDeleted = "monitoring.deleted"
)

// Observer is told about every change. It receives a copy.
type Observer func(eventType string, m *Monitoring)

// Service implements monitoring operations with the ownership policy
// applied.
type Service struct {
	repo     Repository
	devices  DeviceLookup
	logger   *slog.Logger
	recorder StatusRecorder
	observer Observer
}

// NewService creates a monitoring service.
func NewService(repo Repository, devices DeviceLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, devices: devices, logger: logger}
}

// SetStatusRecorder enables status telemetry.
func (s *Service) SetStatusRecorder(r StatusRecorder) { s.recorder = r }

// SetObserver registers the change observer.
func (s *Service) SetObserver(o Observer) { s.observer = o }

// Create adds one record per request. Every request is validated and its
// device authorized before anything is written.
func (s *Service) Create(ctx context.Context, reqs []Request) ([]*Monitoring, error) {
	principal := auth.PrincipalFrom(ctx)
	if err := auth.RequirePermission(principal, auth.PermMonitoringWrite); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(reqs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: at most %d records per batch", ErrInvalidMonitoring, MaxBatchSize)
	}

	records := make([]*Monitoring, 0, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		d, err := s.devices.Get(ctx, strings.TrimSpace(req.DeviceCode))
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		status := req.Status
		if status == "" {
			status = device.StatusOff
		}
		records = append(records, &Monitoring{
			Description: req.Description,
			DeviceID:    d.ID,
			DeviceCode:  d.Code,
			DeviceName:  d.Name,
			Status:      status,
			CreatedBy:   principal.ID,
			Members:     auth.WithCreator(principal.ID, nil),
		})
	}

	if err := s.repo.CreateBatch(ctx, records); err != nil {
		return nil, err
	}

	for _, m := range records {
		s.logger.Info("monitoring created", "code", m.Code, "device", m.DeviceCode)
		s.record(m)
		s.notify(EventCreated, m)
	}
	return records, nil
}

// Get returns a record the caller may access.
func (s *Service) Get(ctx context.Context, code string) (*Monitoring, error) {
	return s.load(ctx, code, auth.PermMonitoringRead)
}

func (s *Service) load(ctx context.Context, code string, perm auth.Permission) (*Monitoring, error) {
	principal := auth.PrincipalFrom(ctx)
	if err := auth.RequirePermission(principal, perm); err != nil {
		return nil, err
	}
	m, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Update changes description and status and may move the record to
// another device the caller can access.
func (s *Service) Update(ctx context.Context, code string, req Request) (*Monitoring, error) {
	m, err := s.load(ctx, code, auth.PermMonitoringWrite)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target := strings.TrimSpace(req.DeviceCode)
	if target != m.DeviceCode {
		d, err := s.devices.Get(ctx, target)
		if err != nil {
			return nil, err
		}
		m.DeviceID, m.DeviceCode, m.DeviceName = d.ID, d.Code, d.Name
	}

	m.Description = req.Description
	statusChanged := false
	if req.Status != "" && req.Status != m.Status {
		m.Status = req.Status
		statusChanged = true
	}

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("monitoring updated", "code", m.Code, "device", m.DeviceCode)
	if statusChanged {
		s.record(m)
	}
	s.notify(EventUpdated, m)
	return m, nil
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, code string) error {
	m, err := s.load(ctx, code, auth.PermMonitoringWrite)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		return err
	}
	s.logger.Info("monitoring deleted", "code", code)
	s.notify(EventDeleted, m)
	return nil
}

// DeleteMany removes all codes or none: every record must exist and be
// accessible before any is deleted.
func (s *Service) DeleteMany(ctx context.Context, codes []string) error {
	unique := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c != "" && !slices.Contains(unique, c) {
			unique = append(unique, c)
		}
	}
	if len(unique) == 0 {
		return ErrEmptyBatch
	}
	if len(unique) > MaxBatchSize {
		return fmt.Errorf("%w: at most %d records per batch", ErrInvalidMonitoring, MaxBatchSize)
	}

	records := make([]*Monitoring, 0, len(unique))
	for _, code := range unique {
		m, err := s.load(ctx, code, auth.PermMonitoringWrite)
		if err != nil {
			return fmt.Errorf("%s: %w", code, err)
		}
		records = append(records, m)
	}

	if err := s.repo.DeleteMany(ctx, unique); err != nil {
		return err
	}

	s.logger.Info("monitorings deleted", "count", len(unique))
	for _, m := range records {
		s.notify(EventDeleted, m)
	}
	return nil
}

// List returns the records visible to the caller.
func (s *Service) List(ctx context.Context, filter Filter) (*device.Page[Monitoring], error) {
	principal := auth.PrincipalFrom(ctx)
	if err := auth.RequirePermission(principal, auth.PermMonitoringRead); err != nil {
		return nil, err
	}
	filter.Scope = auth.ScopeFor(principal)
	return s.repo.List(ctx, filter)
}

// ListByDevice returns the records of one device. Access to the device
// grants visibility of all its records.
func (s *Service) ListByDevice(ctx context.Context, deviceCode string, filter Filter) (*device.Page[Monitoring], error) {
	principal := auth.PrincipalFrom(ctx)
	if err := auth.RequirePermission(principal, auth.PermMonitoringRead); err != nil {
		return nil, err
	}
	d, err := s.devices.Get(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	filter.DeviceCode = d.Code
	filter.Scope = nil
	return s.repo.List(ctx, filter)
}

func (s *Service) record(m *Monitoring) {
	if s.recorder != nil {
		s.recorder.WriteMonitoringStatus(m.Code, m.DeviceCode, m.Status == device.StatusOn, m.UpdatedAt)
	}
}

func (s *Service) notify(eventType string, m *Monitoring) {
	if s.observer != nil {
		s.observer(eventType, m.Clone())
	}
}
