package sensors

import "fmt"

// Vector3 is a three-axis measurement.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a unit rotation.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// AccelerometerReading is acceleration in units of g (9.81 m/s²).
type AccelerometerReading struct {
	Acceleration Vector3 `json:"acceleration"`
}

// GyroscopeReading is angular velocity in radians per second.
type GyroscopeReading struct {
	AngularVelocity Vector3 `json:"angular_velocity"`
}

// MagnetometerReading is the magnetic field in microteslas.
type MagnetometerReading struct {
	MagneticField Vector3 `json:"magnetic_field"`
}

// BarometerReading is atmospheric pressure in hectopascals.
type BarometerReading struct {
	PressureHPa float64 `json:"pressure_hpa"`
}

// CompassReading is the heading in degrees clockwise from magnetic north.
type CompassReading struct {
	HeadingMagneticNorth float64 `json:"heading_magnetic_north"`
}

// OrientationReading is the device orientation relative to the earth.
type OrientationReading struct {
	Orientation Quaternion `json:"orientation"`
}

func arity(values []float64, want int) error {
	if len(values) != want {
		return fmt.Errorf("expected %d values, got %d", want, len(values))
	}
	return nil
}

func decodeVector3(values []float64) (Vector3, error) {
	if err := arity(values, 3); err != nil {
		return Vector3{}, err
	}
	return Vector3{X: values[0], Y: values[1], Z: values[2]}, nil
}

// DecodeAccelerometer decodes an x,y,z frame.
func DecodeAccelerometer(values []float64) (AccelerometerReading, error) {
	v, err := decodeVector3(values)
	return AccelerometerReading{Acceleration: v}, err
}

// DecodeGyroscope decodes an x,y,z frame.
func DecodeGyroscope(values []float64) (GyroscopeReading, error) {
	v, err := decodeVector3(values)
	return GyroscopeReading{AngularVelocity: v}, err
}

// DecodeMagnetometer decodes an x,y,z frame.
func DecodeMagnetometer(values []float64) (MagnetometerReading, error) {
	v, err := decodeVector3(values)
	return MagnetometerReading{MagneticField: v}, err
}

// DecodeBarometer decodes a single pressure value.
func DecodeBarometer(values []float64) (BarometerReading, error) {
	if err := arity(values, 1); err != nil {
		return BarometerReading{}, err
	}
	return BarometerReading{PressureHPa: values[0]}, nil
}

// DecodeCompass decodes a single heading. Headings are normalized into
// [0, 360).
func DecodeCompass(values []float64) (CompassReading, error) {
	if err := arity(values, 1); err != nil {
		return CompassReading{}, err
	}
	h := values[0]
	for h < 0 {
		h += 360
	}
	for h >= 360 {
		h -= 360
	}
	return CompassReading{HeadingMagneticNorth: h}, nil
}

// DecodeOrientation decodes an x,y,z,w quaternion frame.
func DecodeOrientation(values []float64) (OrientationReading, error) {
	if err := arity(values, 4); err != nil {
		return OrientationReading{}, err
	}
	return OrientationReading{Orientation: Quaternion{X: values[0], Y: values[1], Z: values[2], W: values[3]}}, nil
}
