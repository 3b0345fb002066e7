package domain

import (
	"errors"
	"fmt"

	topology "parcel-sorter/internal/features/topology/domain"
)

// ErrUnsupportedAngle is returned for angles outside the diverter's closed set.
var ErrUnsupportedAngle = errors.New("unsupported diverter angle")

// Angle is a wheel position in degrees.
type Angle int

const (
	AngleStraight Angle = 0
	// AngleReserved is accepted by the hardware but never commanded by a path.
	AngleReserved Angle = 30
	AngleLeft     Angle = 45
	AngleRight    Angle = 90
)

// AngleFor maps a path direction to the wheel angle that produces it.
func AngleFor(d topology.Direction) (Angle, error) {
	switch d {
	case topology.DirectionStraight:
		return AngleStraight, nil
	case topology.DirectionLeft:
		return AngleLeft, nil
	case topology.DirectionRight:
		return AngleRight, nil
	default:
		return 0, fmt.Errorf("%w: no angle for direction %q", ErrUnsupportedAngle, d)
	}
}

// Encode returns the 2-bit vendor code: 0->00, 30->01, 45->10, 90->11.
func (a Angle) Encode() (byte, error) {
	switch a {
	case AngleStraight:
		return 0b00, nil
	case AngleReserved:
		return 0b01, nil
	case AngleLeft:
		return 0b10, nil
	case AngleRight:
		return 0b11, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedAngle, int(a))
	}
}

// DecodeAngle is the inverse of Encode. Only the low two bits are read.
func DecodeAngle(code byte) Angle {
	switch code & 0b11 {
	case 0b01:
		return AngleReserved
	case 0b10:
		return AngleLeft
	case 0b11:
		return AngleRight
	default:
		return AngleStraight
	}
}
