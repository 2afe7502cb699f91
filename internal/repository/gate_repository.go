package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"checkpoint-gate/internal/domain/gate"
)

const maxPageSize = 100

type GateRepository struct {
	db *gorm.DB
}

func NewGateRepository(db *gorm.DB) *GateRepository {
	return &GateRepository{db: db}
}

type Vehicle struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	Model              *string
	Color              *string
	OwnerName          *string
	OriginCountry      *string
	DestinationCountry *string
	Plates             []LicensePlate `gorm:"foreignKey:VehicleID"`
	CreatedAt          time.Time
}

func (v *Vehicle) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type LicensePlate struct {
	ID        int64     `gorm:"primaryKey"`
	VehicleID uuid.UUID `gorm:"type:uuid;not null;index"`
	Number    string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
}

type AuthorizationCheck struct {
	ID           int64     `gorm:"primaryKey"`
	VehicleID    uuid.UUID `gorm:"type:uuid;not null;index"`
	BorderName   *string
	Approved     bool `gorm:"not null;default:false"`
	DocumentPath *string
	CheckedAt    time.Time `gorm:"not null"`
}

type PlateRecognition struct {
	ID           int64      `gorm:"primaryKey"`
	SessionID    uuid.UUID  `gorm:"type:uuid;not null"`
	Plate        string     `gorm:"not null;index"`
	VehicleID    *uuid.UUID `gorm:"type:uuid"`
	Success      bool       `gorm:"not null;default:false"`
	Approved     bool       `gorm:"not null;default:false"`
	Details      datatypes.JSONMap
	RecognizedAt time.Time `gorm:"not null;index"`
}

type ActuationEvent struct {
	ID        int64      `gorm:"primaryKey"`
	VehicleID *uuid.UUID `gorm:"type:uuid;index"`
	Action    string     `gorm:"not null"`
	CreatedAt time.Time  `gorm:"not null;index"`
}

// Models lists every table for drivers that auto-migrate.
func Models() []any {
	return []any{&Vehicle{}, &LicensePlate{}, &AuthorizationCheck{}, &PlateRecognition{}, &ActuationEvent{}}
}

// FindVehicleByPlate returns nil without error when no vehicle carries plate.
func (r *GateRepository) FindVehicleByPlate(ctx context.Context, plate string) (*gate.VehicleRecord, error) {
	var lp LicensePlate
	err := r.db.WithContext(ctx).Where("number = ?", plate).First(&lp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v Vehicle
	err = r.db.WithContext(ctx).
		Preload("Plates", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id = ?", lp.VehicleID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toVehicleRecord(v), nil
}

func toVehicleRecord(v Vehicle) *gate.VehicleRecord {
	rec := &gate.VehicleRecord{
		ID:                 v.ID,
		Model:              deref(v.Model),
		Color:              deref(v.Color),
		OwnerName:          deref(v.OwnerName),
		OriginCountry:      deref(v.OriginCountry),
		DestinationCountry: deref(v.DestinationCountry),
		Plates:             make([]string, 0, len(v.Plates)),
	}
	for _, p := range v.Plates {
		rec.Plates = append(rec.Plates, p.Number)
	}
	return rec
}

// LatestAuthorization returns the most recent check for a vehicle, or nil
// when it has never been checked.
func (r *GateRepository) LatestAuthorization(ctx context.Context, vehicleID uuid.UUID) (*gate.AuthorizationStatus, error) {
	var check AuthorizationCheck
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("checked_at DESC").
		Order("id DESC").
		First(&check).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gate.AuthorizationStatus{
		VehicleID:  check.VehicleID,
		BorderName: deref(check.BorderName),
		Approved:   check.Approved,
		CheckedAt:  check.CheckedAt,
	}, nil
}

func (r *GateRepository) RecordAuthorizationCheck(ctx context.Context, status gate.AuthorizationStatus, documentPath string) (int64, error) {
	check := AuthorizationCheck{
		VehicleID:    status.VehicleID,
		BorderName:   optional(status.BorderName),
		Approved:     status.Approved,
		DocumentPath: optional(documentPath),
		CheckedAt:    status.CheckedAt.UTC(),
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&check).Error; err != nil {
		return 0, err
	}
	return check.ID, nil
}

// Append stores one actuation event. GateRepository is the production
// action log of the barrier.
func (r *GateRepository) Append(ctx context.Context, ev gate.ActuationEvent) error {
	row := ActuationEvent{
		VehicleID: ev.VehicleID,
		Action:    string(ev.Action),
		CreatedAt: ev.Timestamp.UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

type voteDetails struct {
	Samples []string `json:"samples"`
	Votes   []int    `json:"votes"`
}

func (r *GateRepository) CreateRecognition(ctx context.Context, rec *gate.Recognition) error {
	row := PlateRecognition{
		SessionID:    rec.SessionID,
		Plate:        rec.Plate,
		VehicleID:    rec.VehicleID,
		Success:      rec.Success,
		Approved:     rec.Approved,
		RecognizedAt: rec.RecognizedAt.UTC(),
	}
	if row.RecognizedAt.IsZero() {
		row.RecognizedAt = time.Now().UTC()
	}
	if len(rec.Samples) > 0 {
		row.Details = datatypes.JSONMap{"samples": rec.Samples, "votes": rec.Votes}
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	rec.ID = row.ID
	return nil
}

func (r *GateRepository) FindEvents(ctx context.Context, vehicleID *uuid.UUID, from, to *time.Time, limit, offset int) ([]gate.ActuationEvent, error) {
	query := r.db.WithContext(ctx).Model(&ActuationEvent{})

	if vehicleID != nil {
		query = query.Where("vehicle_id = ?", *vehicleID)
	}
	if from != nil {
		query = query.Where("created_at >= ?", from.UTC())
	}
	if to != nil {
		query = query.Where("created_at <= ?", to.UTC())
	}
	query = paginate(query.Order("created_at DESC").Order("id DESC"), limit, offset)

	var rows []ActuationEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]gate.ActuationEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, gate.ActuationEvent{
			VehicleID: row.VehicleID,
			Action:    gate.ActionKind(row.Action),
			Timestamp: row.CreatedAt,
		})
	}
	return events, nil
}

func (r *GateRepository) FindRecognitions(ctx context.Context, plate *string, limit, offset int) ([]gate.Recognition, error) {
	query := r.db.WithContext(ctx).Model(&PlateRecognition{})
	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	query = paginate(query.Order("recognized_at DESC").Order("id DESC"), limit, offset)

	var rows []PlateRecognition
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]gate.Recognition, 0, len(rows))
	for _, row := range rows {
		rec := gate.Recognition{
			ID:           row.ID,
			SessionID:    row.SessionID,
			Plate:        row.Plate,
			VehicleID:    row.VehicleID,
			Success:      row.Success,
			Approved:     row.Approved,
			RecognizedAt: row.RecognizedAt,
		}
		if d, ok := decodeDetails(row.Details); ok {
			rec.Samples, rec.Votes = d.Samples, d.Votes
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteOlderThan removes actuation events and recognitions recorded
// before the cutoff.
func (r *GateRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff.UTC()).Delete(&ActuationEvent{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		res = tx.Where("recognized_at < ?", cutoff.UTC()).Delete(&PlateRecognition{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		return nil
	})
	return deleted, err
}

func paginate(query *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		if limit > maxPageSize {
			limit = maxPageSize
		}
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

func decodeDetails(m datatypes.JSONMap) (voteDetails, bool) {
	var d voteDetails
	if len(m) == 0 {
		return d, false
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return d, false
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, false
	}
	return d, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
