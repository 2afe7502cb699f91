package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"checkpoint-gate/internal/actuator"
	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrNoActuator   = errors.New("gate actuator not configured")
)

// Store is the persistence the gate service needs. GateRepository
// implements it.
type Store interface {
	FindVehicleByPlate(ctx context.Context, plate string) (*gate.VehicleRecord, error)
	LatestAuthorization(ctx context.Context, vehicleID uuid.UUID) (*gate.AuthorizationStatus, error)
	RecordAuthorizationCheck(ctx context.Context, status gate.AuthorizationStatus, documentPath string) (int64, error)
	CreateRecognition(ctx context.Context, rec *gate.Recognition) error
	FindEvents(ctx context.Context, vehicleID *uuid.UUID, from, to *time.Time, limit, offset int) ([]gate.ActuationEvent, error)
	FindRecognitions(ctx context.Context, plate *string, limit, offset int) ([]gate.Recognition, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Actuator interface {
	Trigger(req actuator.Request) error
	State() actuator.State
	Pending() int
}

type GateService struct {
	store      Store
	gate       Actuator
	borderName string
	log        zerolog.Logger
	now        func() time.Time
}

// NewGateService builds the service. act may be nil for offline commands
// that never drive the barrier.
func NewGateService(store Store, act Actuator, borderName string, log zerolog.Logger) *GateService {
	return &GateService{
		store:      store,
		gate:       act,
		borderName: borderName,
		log:        log,
		now:        time.Now,
	}
}

// Resolve looks up the vehicle carrying plate and whether its most recent
// authorization is approved. Any registry failure yields not approved.
func (s *GateService) Resolve(ctx context.Context, plate string) (*gate.VehicleRecord, bool, error) {
	if plate == "" {
		return nil, false, fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}

	vehicle, err := s.store.FindVehicleByPlate(ctx, plate)
	if err != nil {
		s.log.Error().Err(err).Str("plate", plate).Msg("failed to look up vehicle")
		return nil, false, fmt.Errorf("failed to look up vehicle: %w", err)
	}
	if vehicle == nil {
		s.log.Info().Str("plate", plate).Msg("vehicle not found")
		return nil, false, nil
	}

	status, err := s.store.LatestAuthorization(ctx, vehicle.ID)
	if err != nil {
		s.log.Error().Err(err).Str("plate", plate).Str("vehicle_id", vehicle.ID.String()).Msg("failed to load authorization")
		return vehicle, false, fmt.Errorf("failed to load authorization: %w", err)
	}
	if status == nil || !status.Approved {
		s.log.Info().Str("plate", plate).Str("vehicle_id", vehicle.ID.String()).Msg("vehicle not approved")
		return vehicle, false, nil
	}

	s.log.Info().
		Str("plate", plate).
		Str("vehicle_id", vehicle.ID.String()).
		Time("checked_at", status.CheckedAt).
		Msg("vehicle approved")
	return vehicle, true, nil
}

// HandleResolution authorizes a resolved plate, stores the recognition and
// triggers the barrier when approved. A busy gate is not an error.
func (s *GateService) HandleResolution(ctx context.Context, resolved gate.ResolvedPlate) (gate.Decision, error) {
	decision := gate.Decision{SessionID: uuid.New(), Plate: resolved.Plate}

	vehicle, approved, resolveErr := s.Resolve(ctx, resolved.Plate)
	decision.Vehicle = vehicle
	decision.Approved = approved && resolveErr == nil

	rec := &gate.Recognition{
		SessionID:    decision.SessionID,
		Plate:        resolved.Plate,
		Success:      vehicle != nil,
		Approved:     decision.Approved,
		Samples:      resolved.Samples,
		Votes:        resolved.Votes,
		RecognizedAt: s.now(),
	}
	if vehicle != nil {
		id := vehicle.ID
		rec.VehicleID = &id
	}
	if err := s.store.CreateRecognition(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("plate", resolved.Plate).Msg("failed to save recognition")
	}

	if resolveErr != nil {
		return decision, resolveErr
	}
	if !decision.Approved {
		return decision, nil
	}

	if s.gate == nil {
		return decision, ErrNoActuator
	}
	err := s.gate.Trigger(actuator.Request{VehicleID: rec.VehicleID, Plate: resolved.Plate, Source: "camera"})
	switch {
	case err == nil:
		decision.Triggered = true
	case errors.Is(err, actuator.ErrBusy):
		s.log.Warn().Str("plate", resolved.Plate).Msg("gate busy, approved vehicle not admitted")
	default:
		return decision, fmt.Errorf("failed to trigger gate: %w", err)
	}
	return decision, nil
}

// OpenManually queues an operator-initiated sequence.
func (s *GateService) OpenManually(operator string) error {
	if s.gate == nil {
		return ErrNoActuator
	}
	if err := s.gate.Trigger(actuator.Request{Source: "manual:" + operator}); err != nil {
		return err
	}
	s.log.Info().Str("operator", operator).Msg("manual gate open queued")
	return nil
}

type GateStatus struct {
	State   string `json:"state"`
	Pending int    `json:"pending"`
}

func (s *GateService) GateStatus() (GateStatus, error) {
	if s.gate == nil {
		return GateStatus{}, ErrNoActuator
	}
	return GateStatus{State: s.gate.State().String(), Pending: s.gate.Pending()}, nil
}

// RecordAuthorization stores a new authorization check for the vehicle
// carrying plate.
func (s *GateService) RecordAuthorization(ctx context.Context, plate string, approved bool, documentPath string) (*gate.AuthorizationStatus, error) {
	cleaned := utils.CleanPlateText(plate)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}

	vehicle, err := s.store.FindVehicleByPlate(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to look up vehicle: %w", err)
	}
	if vehicle == nil {
		return nil, fmt.Errorf("%w: no vehicle with plate %s", ErrNotFound, cleaned)
	}

	status := gate.AuthorizationStatus{
		VehicleID:  vehicle.ID,
		BorderName: s.borderName,
		Approved:   approved,
		CheckedAt:  s.now(),
	}
	id, err := s.store.RecordAuthorizationCheck(ctx, status, documentPath)
	if err != nil {
		s.log.Error().Err(err).Str("plate", cleaned).Msg("failed to record authorization check")
		return nil, fmt.Errorf("failed to record authorization check: %w", err)
	}

	s.log.Info().
		Int64("check_id", id).
		Str("plate", cleaned).
		Str("vehicle_id", vehicle.ID.String()).
		Bool("approved", approved).
		Str("document", documentPath).
		Msg("recorded authorization check")
	return &status, nil
}

func (s *GateService) FindEvents(ctx context.Context, vehicleQuery *string, from, to *string, limit, offset int) ([]gate.ActuationEvent, error) {
	var vehicleID *uuid.UUID
	if vehicleQuery != nil && *vehicleQuery != "" {
		id, err := uuid.Parse(*vehicleQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid vehicle_id", ErrInvalidInput)
		}
		vehicleID = &id
	}

	fromTime, err := parseTime(from, "from")
	if err != nil {
		return nil, err
	}
	toTime, err := parseTime(to, "to")
	if err != nil {
		return nil, err
	}

	limit, offset = clampPage(limit, offset)
	events, err := s.store.FindEvents(ctx, vehicleID, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	return events, nil
}

func (s *GateService) FindRecognitions(ctx context.Context, plateQuery *string, limit, offset int) ([]gate.Recognition, error) {
	var plate *string
	if plateQuery != nil {
		if cleaned := utils.CleanPlateText(*plateQuery); cleaned != "" {
			plate = &cleaned
		}
	}

	limit, offset = clampPage(limit, offset)
	recs, err := s.store.FindRecognitions(ctx, plate, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find recognitions: %w", err)
	}
	return recs, nil
}

// CleanupOldRecords removes actuation events and recognitions older than
// the given number of days.
func (s *GateService) CleanupOldRecords(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	deleted, err := s.store.DeleteOlderThan(ctx, s.now().AddDate(0, 0, -days))
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old records")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old records")
	}
	return deleted, nil
}

func parseTime(raw *string, field string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s time format", ErrInvalidInput, field)
	}
	return &t, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
