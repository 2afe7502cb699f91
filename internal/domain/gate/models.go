package gate

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// Frame is one image pulled from the camera. It is owned by the pipeline
// iteration that read it.
type Frame struct {
	Index int64
	Image image.Image
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

type PlateCandidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	FrameIndex int64   `json:"frame_index"`
}

// NormalizedPlate always satisfies the plate grammar.
type NormalizedPlate struct {
	Plate      string  `json:"plate"`
	Confidence float64 `json:"confidence"`
	FrameIndex int64   `json:"frame_index"`
}

type ResolvedPlate struct {
	Plate   string   `json:"plate"`
	Samples []string `json:"samples"`
	// Votes holds the winning count at each character position.
	Votes []int `json:"votes"`
}

type VehicleRecord struct {
	ID                 uuid.UUID `json:"id"`
	Model              string    `json:"model,omitempty"`
	Color              string    `json:"color,omitempty"`
	OwnerName          string    `json:"owner_name,omitempty"`
	OriginCountry      string    `json:"origin_country,omitempty"`
	DestinationCountry string    `json:"destination_country,omitempty"`
	Plates             []string  `json:"plates"`
}

type AuthorizationStatus struct {
	VehicleID  uuid.UUID `json:"vehicle_id"`
	BorderName string    `json:"border_name,omitempty"`
	Approved   bool      `json:"approved"`
	CheckedAt  time.Time `json:"checked_at"`
}

type ActionKind string

const (
	ActionGateOpened ActionKind = "gate-opened"
	ActionGateClosed ActionKind = "gate-closed"
)

type ActuationEvent struct {
	VehicleID *uuid.UUID `json:"vehicle_id,omitempty"`
	Action    ActionKind `json:"action"`
	Timestamp time.Time  `json:"timestamp"`
}

// Decision is the outcome of handling one resolved plate.
type Decision struct {
	SessionID uuid.UUID      `json:"session_id"`
	Plate     string         `json:"plate"`
	Vehicle   *VehicleRecord `json:"vehicle,omitempty"`
	Approved  bool           `json:"approved"`
	Triggered bool           `json:"triggered"`
}

// Recognition is the stored outcome of one resolved plate.
type Recognition struct {
	ID           int64      `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	Plate        string     `json:"plate"`
	VehicleID    *uuid.UUID `json:"vehicle_id,omitempty"`
	Success      bool       `json:"success"`
	Approved     bool       `json:"approved"`
	Samples      []string   `json:"samples,omitempty"`
	Votes        []int      `json:"votes,omitempty"`
	RecognizedAt time.Time  `json:"recognized_at"`
}
