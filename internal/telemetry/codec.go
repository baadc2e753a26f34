// Package telemetry implements the fixed-layout binary frames exchanged
// with the external decision controller.
//
// Both frame types are sequences of 8-byte IEEE-754 doubles with no
// delimiters, sequence numbers or acknowledgements. Byte order is
// little-endian on both ends by convention (the original counterpart
// packed native doubles on x86). Boolean command fields travel as
// 0.0/1.0 and are recovered by rounding to the nearest integer and
// testing non-zero, so a slightly lossy controller output still decodes.
package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame sizes in bytes on the wire.
const (
	TelemetryFrameSize = 3 * 8
	CommandFrameSize   = 5 * 8
)

// ErrShortRead reports a frame that ended before all of its fields
// arrived. Any 8-byte pattern is a valid double, so incompleteness is
// the only decode failure mode.
var ErrShortRead = fmt.Errorf("telemetry: short read")

// TelemetryFrame is the outbound per-tick observation sent to the
// controller. Field order on the wire is Distance, LeadVelocity,
// EgoVelocity. Immutable once sent.
type TelemetryFrame struct {
	Distance     float64 // metres, ego to lead
	LeadVelocity float64 // m/s
	EgoVelocity  float64 // m/s
}

// CommandFrame is the inbound per-tick decision from the controller.
// Wire order is StopRequested, ForwardCollisionWarning, Deceleration,
// AEBActive, EmergencyBrake. The zero value is the "no command" frame
// used when the controller is silent or absent.
type CommandFrame struct {
	StopRequested           bool
	ForwardCollisionWarning bool
	Deceleration            float64 // normalised 0.0-1.0
	AEBActive               bool
	EmergencyBrake          bool
}

// EncodeTelemetry serialises f into a fresh TelemetryFrameSize buffer.
func EncodeTelemetry(f TelemetryFrame) []byte {
	b := make([]byte, TelemetryFrameSize)
	putFloat(b[0:], f.Distance)
	putFloat(b[8:], f.LeadVelocity)
	putFloat(b[16:], f.EgoVelocity)
	return b
}

// DecodeTelemetry parses a TelemetryFrame from b. Used by the
// controller side of the exchange and by round-trip tests.
func DecodeTelemetry(b []byte) (TelemetryFrame, error) {
	if len(b) < TelemetryFrameSize {
		return TelemetryFrame{}, fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, len(b), TelemetryFrameSize)
	}
	return TelemetryFrame{
		Distance:     getFloat(b[0:]),
		LeadVelocity: getFloat(b[8:]),
		EgoVelocity:  getFloat(b[16:]),
	}, nil
}

// EncodeCommand serialises f, booleans as 0.0/1.0.
func EncodeCommand(f CommandFrame) []byte {
	b := make([]byte, CommandFrameSize)
	putFloat(b[0:], boolToFloat(f.StopRequested))
	putFloat(b[8:], boolToFloat(f.ForwardCollisionWarning))
	putFloat(b[16:], f.Deceleration)
	putFloat(b[24:], boolToFloat(f.AEBActive))
	putFloat(b[32:], boolToFloat(f.EmergencyBrake))
	return b
}

// DecodeCommand parses a CommandFrame from b.
func DecodeCommand(b []byte) (CommandFrame, error) {
	if len(b) < CommandFrameSize {
		return CommandFrame{}, fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, len(b), CommandFrameSize)
	}
	return CommandFrame{
		StopRequested:           floatToBool(getFloat(b[0:])),
		ForwardCollisionWarning: floatToBool(getFloat(b[8:])),
		Deceleration:            getFloat(b[16:]),
		AEBActive:               floatToBool(getFloat(b[24:])),
		EmergencyBrake:          floatToBool(getFloat(b[32:])),
	}, nil
}

func putFloat(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func getFloat(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func boolToFloat(v bool) float64 {
	if v {
		return 1.0
	}
	return 0.0
}

func floatToBool(v float64) bool {
	return math.Round(v) != 0
}
