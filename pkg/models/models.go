package models

import (
	"encoding/json"
	"time"
)

// EngineStatus represents the reported engine state of a vehicle
type EngineStatus string

const (
	EngineOn   EngineStatus = "On"
	EngineOff  EngineStatus = "Off"
	EngineIdle EngineStatus = "Idle"
)

// Valid reports whether the engine status is one of the known states
func (s EngineStatus) Valid() bool {
	switch s {
	case EngineOn, EngineOff, EngineIdle:
		return true
	}
	return false
}

// RegistrationStatus represents the registration state of a vehicle
type RegistrationStatus string

const (
	RegistrationActive         RegistrationStatus = "Active"
	RegistrationMaintenance    RegistrationStatus = "Maintenance"
	RegistrationDecommissioned RegistrationStatus = "Decommissioned"
)

// FleetType categorizes a fleet
type FleetType string

const (
	FleetCorporate FleetType = "Corporate"
	FleetRental    FleetType = "Rental"
	FleetPersonal  FleetType = "Personal"
)

// ViolationType identifies the kind of condition that raised an alert
type ViolationType string

const (
	ViolationOverspeeding ViolationType = "Overspeeding"
	ViolationLowFuel      ViolationType = "Low Fuel"
	ViolationEngineError  ViolationType = "Engine Error"
	ViolationMaintenance  ViolationType = "Maintenance Required"
)

// Fleet represents a group of vehicles under common management
type Fleet struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        FleetType `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Vehicle represents a registered vehicle
type Vehicle struct {
	ID                 string             `json:"id"`
	VIN                string             `json:"vin"`
	Manufacturer       string             `json:"manufacturer"`
	Model              string             `json:"model"`
	FleetID            string             `json:"fleet_id"`
	Owner              string             `json:"owner,omitempty"`
	RegistrationStatus RegistrationStatus `json:"registration_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// TelemetrySample is one immutable telemetry reading from a vehicle.
// Timestamp is caller-supplied (defaulted to ingestion time when absent);
// CreatedAt is always server-assigned.
type TelemetrySample struct {
	ID              string       `json:"id"`
	VehicleID       string       `json:"vehicle_id"`
	Latitude        float64      `json:"latitude"`
	Longitude       float64      `json:"longitude"`
	Speed           float64      `json:"speed"`
	EngineStatus    EngineStatus `json:"engine_status"`
	FuelLevel       float64      `json:"fuel_level"`
	Odometer        float64      `json:"odometer"`
	DiagnosticCodes string       `json:"diagnostic_codes,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Alert is an open or historical threshold violation for a vehicle.
// Severity only ever increases after creation; alerts are escalated,
// never deleted.
type Alert struct {
	ID            string          `json:"id"`
	AlertID       string          `json:"alert_id"`
	VehicleID     string          `json:"vehicle_id"`
	ViolationType ViolationType   `json:"violation_type"`
	Severity      int             `json:"severity"`
	Description   string          `json:"description,omitempty"`
	// TelemetrySnapshot is the triggering sample as an opaque JSON payload;
	// its shape varies by caller and is never interpreted by the engine.
	TelemetrySnapshot json.RawMessage `json:"telemetry_snapshot,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// FleetAnalyticsSnapshot is one per-fleet statistics row produced by the
// aggregator. ActiveVehicles + InactiveVehicles always equals TotalVehicles.
type FleetAnalyticsSnapshot struct {
	ID               string    `json:"id"`
	FleetID          string    `json:"fleet_id"`
	TotalVehicles    int       `json:"total_vehicles"`
	ActiveVehicles   int       `json:"active_vehicles"`
	InactiveVehicles int       `json:"inactive_vehicles"`
	AverageFuelLevel float64   `json:"average_fuel_level"`
	TotalDistance24h float64   `json:"total_distance_24h"`
	AlertCount       int       `json:"alert_count"`
	AlertCountSevere int       `json:"alert_count_severe"`
	CreatedAt        time.Time `json:"created_at"`
}

// SeverityCount is one bucket of the per-severity alert aggregation
type SeverityCount struct {
	Severity int `json:"severity"`
	Count    int `json:"count"`
}

// TypeCount is one bucket of the per-violation-type alert aggregation
type TypeCount struct {
	ViolationType ViolationType `json:"violation_type"`
	Count         int           `json:"count"`
}

// OdometerRange holds the odometer bounds used for distance aggregation:
// the highest reading ever stored for a vehicle and the lowest reading
// within the aggregation window.
type OdometerRange struct {
	VehicleID string  `json:"vehicle_id"`
	Max       float64 `json:"max"`
	WindowMin float64 `json:"window_min"`
}
