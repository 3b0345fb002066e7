package domain

import (
	"time"

	"go.uber.org/atomic"
)

var lastParcelID atomic.Uint64

// NewParcelID returns a unique, strictly increasing id derived from the wall
// clock in Unix milliseconds. Collisions within the same millisecond bump the id.
func NewParcelID() uint64 {
	for {
		now := uint64(time.Now().UnixMilli())
		last := lastParcelID.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if lastParcelID.CompareAndSwap(last, next) {
			return next
		}
	}
}

// SensorReading is a photo-eye trigger as received from the line.
type SensorReading struct {
	ParcelID   uint64    `json:"parcel_id"`
	SensorID   string    `json:"sensor_id"`
	SensorType string    `json:"sensor_type,omitempty"`
	Barcode    string    `json:"barcode,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// ParcelDescriptor identifies a parcel and where it entered the sorter.
type ParcelDescriptor struct {
	ParcelID    uint64    `json:"parcel_id"`
	Barcode     string    `json:"barcode,omitempty"`
	IngressTime time.Time `json:"ingress_time"`
	SensorID    string    `json:"sensor_id,omitempty"`
}

// NewDescriptorFromSensor builds a descriptor from a sensor trigger. Readings
// without an id or time get a fresh one.
func NewDescriptorFromSensor(r SensorReading) ParcelDescriptor {
	d := ParcelDescriptor{
		ParcelID:    r.ParcelID,
		Barcode:     r.Barcode,
		IngressTime: r.DetectedAt,
		SensorID:    r.SensorID,
	}
	if d.ParcelID == 0 {
		d.ParcelID = NewParcelID()
	}
	if d.IngressTime.IsZero() {
		d.IngressTime = time.Now()
	}
	return d
}

// NewDescriptorFromDebug builds a descriptor for an operator-issued sort.
func NewDescriptorFromDebug(parcelID uint64) ParcelDescriptor {
	if parcelID == 0 {
		parcelID = NewParcelID()
	}
	return ParcelDescriptor{ParcelID: parcelID, IngressTime: time.Now()}
}
