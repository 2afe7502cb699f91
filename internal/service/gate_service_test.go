package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkpoint-gate/internal/actuator"
	"checkpoint-gate/internal/domain/gate"
)

type fakeStore struct {
	mu           sync.Mutex
	vehicles     map[string]*gate.VehicleRecord
	statuses     map[uuid.UUID]*gate.AuthorizationStatus
	lookupErr    error
	recognitions []gate.Recognition
	checks       []gate.AuthorizationStatus
	cutoff       time.Time
	lastLimit    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vehicles: map[string]*gate.VehicleRecord{},
		statuses: map[uuid.UUID]*gate.AuthorizationStatus{},
	}
}

func (f *fakeStore) addVehicle(plate string, approved *bool) *gate.VehicleRecord {
	v := &gate.VehicleRecord{ID: uuid.New(), Plates: []string{plate}}
	f.vehicles[plate] = v
	if approved != nil {
		f.statuses[v.ID] = &gate.AuthorizationStatus{VehicleID: v.ID, Approved: *approved, CheckedAt: time.Now()}
	}
	return v
}

func (f *fakeStore) FindVehicleByPlate(_ context.Context, plate string) (*gate.VehicleRecord, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.vehicles[plate], nil
}

func (f *fakeStore) LatestAuthorization(_ context.Context, id uuid.UUID) (*gate.AuthorizationStatus, error) {
	return f.statuses[id], nil
}

func (f *fakeStore) RecordAuthorizationCheck(_ context.Context, status gate.AuthorizationStatus, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, status)
	return int64(len(f.checks)), nil
}

func (f *fakeStore) CreateRecognition(_ context.Context, rec *gate.Recognition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recognitions = append(f.recognitions, *rec)
	return nil
}

func (f *fakeStore) FindEvents(_ context.Context, _ *uuid.UUID, _, _ *time.Time, limit, _ int) ([]gate.ActuationEvent, error) {
	f.lastLimit = limit
	return nil, nil
}

func (f *fakeStore) FindRecognitions(_ context.Context, _ *string, limit, _ int) ([]gate.Recognition, error) {
	f.lastLimit = limit
	return f.recognitions, nil
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

type fakeActuator struct {
	requests []actuator.Request
	err      error
}

func (f *fakeActuator) Trigger(req actuator.Request) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeActuator) State() actuator.State { return actuator.StateHolding }
func (f *fakeActuator) Pending() int { return len(f.requests) }

func boolPtr(b bool) *bool { return &b }

func TestResolve(t *testing.T) {
	store := newFakeStore()
	approved := store.addVehicle("RAB123C", boolPtr(true))
	denied := store.addVehicle("RCD456E", boolPtr(false))
	unchecked := store.addVehicle("REF789G", nil)
	svc := NewGateService(store, nil, "north", zerolog.Nop())
	ctx := context.Background()

	v, ok, err := svc.Resolve(ctx, "RAB123C")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, approved.ID, v.ID)

	v, ok, err = svc.Resolve(ctx, "RCD456E")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, denied.ID, v.ID)

	v, ok, err = svc.Resolve(ctx, "REF789G")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, unchecked.ID, v.ID)

	v, ok, err = svc.Resolve(ctx, "RZZ999Z")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	_, _, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolveFailsClosed(t *testing.T) {
	store := newFakeStore()
	store.addVehicle("RAB123C", boolPtr(true))
	store.lookupErr = errors.New("connection refused")
	svc := NewGateService(store, nil, "", zerolog.Nop())

	v, ok, err := svc.Resolve(context.Background(), "RAB123C")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestHandleResolutionTriggersApproved(t *testing.T) {
	store := newFakeStore()
	vehicle := store.addVehicle("RAB129C", boolPtr(true))
	act := &fakeActuator{}
	svc := NewGateService(store, act, "", zerolog.Nop())

	resolved := gate.ResolvedPlate{Plate: "RAB129C", Samples: []string{"RAB129C"}, Votes: []int{1, 1, 1, 1, 1, 1, 1}}
	decision, err := svc.HandleResolution(context.Background(), resolved)
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.True(t, decision.Triggered)
	assert.NotEqual(t, uuid.Nil, decision.SessionID)
	require.Len(t, act.requests, 1)
	require.NotNil(t, act.requests[0].VehicleID)
	assert.Equal(t, vehicle.ID, *act.requests[0].VehicleID)

	require.Len(t, store.recognitions, 1)
	rec := store.recognitions[0]
	assert.True(t, rec.Success)
	assert.True(t, rec.Approved)
	assert.Equal(t, decision.SessionID, rec.SessionID)
	assert.Equal(t, resolved.Samples, rec.Samples)
}

func TestHandleResolutionDeniedDoesNotTrigger(t *testing.T) {
	store := newFakeStore()
	store.addVehicle("RCD456E", boolPtr(false))
	act := &fakeActuator{}
	svc := NewGateService(store, act, "", zerolog.Nop())

	for _, plate := range []string{"RCD456E", "RZZ999Z"} {
		decision, err := svc.HandleResolution(context.Background(), gate.ResolvedPlate{Plate: plate})
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.False(t, decision.Triggered)
	}
	assert.Empty(t, act.requests)
	require.Len(t, store.recognitions, 2)
	assert.True(t, store.recognitions[0].Success)
	assert.False(t, store.recognitions[1].Success)
}

func TestHandleResolutionBusyGate(t *testing.T) {
	store := newFakeStore()
	store.addVehicle("RAB123C", boolPtr(true))
	svc := NewGateService(store, &fakeActuator{err: actuator.ErrBusy}, "", zerolog.Nop())

	decision, err := svc.HandleResolution(context.Background(), gate.ResolvedPlate{Plate: "RAB123C"})
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.False(t, decision.Triggered)
}

func TestRecordAuthorization(t *testing.T) {
	store := newFakeStore()
	vehicle := store.addVehicle("RAB123C", nil)
	svc := NewGateService(store, nil, "north", zerolog.Nop())
	ctx := context.Background()

	status, err := svc.RecordAuthorization(ctx, " rab123c ", true, "permit.pdf")
	require.NoError(t, err)
	assert.Equal(t, vehicle.ID, status.VehicleID)
	assert.Equal(t, "north", status.BorderName)
	assert.True(t, status.Approved)
	require.Len(t, store.checks, 1)

	_, err = svc.RecordAuthorization(ctx, "RZZ999Z", true, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.RecordAuthorization(ctx, "  ", true, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOpenManuallyAndStatus(t *testing.T) {
	act := &fakeActuator{}
	svc := NewGateService(newFakeStore(), act, "", zerolog.Nop())

	require.NoError(t, svc.OpenManually("alice"))
	require.Len(t, act.requests, 1)
	assert.Equal(t, "manual:alice", act.requests[0].Source)

	status, err := svc.GateStatus()
	require.NoError(t, err)
	assert.Equal(t, "holding", status.State)
	assert.Equal(t, 1, status.Pending)

	offline := NewGateService(newFakeStore(), nil, "", zerolog.Nop())
	assert.ErrorIs(t, offline.OpenManually("bob"), ErrNoActuator)
}

func TestFindEventsValidatesInput(t *testing.T) {
	store := newFakeStore()
	svc := NewGateService(store, nil, "", zerolog.Nop())
	ctx := context.Background()

	bad := "not-a-uuid"
	_, err := svc.FindEvents(ctx, &bad, nil, nil, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	from := "yesterday"
	_, err = svc.FindEvents(ctx, nil, &from, nil, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.FindEvents(ctx, nil, nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, store.lastLimit)

	_, err = svc.FindRecognitions(ctx, nil, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, store.lastLimit)
}

func TestCleanupOldRecords(t *testing.T) {
	store := newFakeStore()
	svc := NewGateService(store, nil, "", zerolog.Nop())
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	deleted, err := svc.CleanupOldRecords(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Equal(t, fixed.AddDate(0, 0, -30), store.cutoff)

	_, err = svc.CleanupOldRecords(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
