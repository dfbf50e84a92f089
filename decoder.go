package aerostat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultSentinel marks a line as a telemetry record.
	DefaultSentinel = "MXX"

	fieldDelimiter = ","
)

// Field identifies a value in a telemetry line.
type Field int

const (
	FieldLatitude Field = iota
	FieldLongitude
	FieldAltitude
	FieldDischargeVolume
	FieldGasVolume
	FieldHorizontalSpeed
	FieldClimbSpeed
	FieldZAcceleration
	FieldFusionAltitude
	FieldPressureAltitude
	FieldGPSAltitude
	FieldTargetAltitude
	FieldPT100Temperature
	FieldBoardTemperature
	FieldBatteryVoltage
	FieldCapacitorVoltage
	FieldVentingTime
	FieldBallastQuantity
)

var fieldNames = map[Field]string{
	FieldLatitude:         "latitude",
	FieldLongitude:        "longitude",
	FieldAltitude:         "altitude",
	FieldDischargeVolume:  "discharge_volume",
	FieldGasVolume:        "gas_volume",
	FieldHorizontalSpeed:  "horizontal_speed",
	FieldClimbSpeed:       "climb_speed",
	FieldZAcceleration:    "z_acceleration",
	FieldFusionAltitude:   "fusion_altitude",
	FieldPressureAltitude: "pressure_altitude",
	FieldGPSAltitude:      "gps_altitude",
	FieldTargetAltitude:   "target_altitude",
	FieldPT100Temperature: "pt100_temperature",
	FieldBoardTemperature: "board_temperature",
	FieldBatteryVoltage:   "battery_voltage",
	FieldCapacitorVoltage: "capacitor_voltage",
	FieldVentingTime:      "venting_time",
	FieldBallastQuantity:  "ballast_quantity",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "unknown"
}

func (f Field) set(frame *TelemetryFrame, v float64) {
	switch f {
	case FieldLatitude:
		frame.Latitude = v
	case FieldLongitude:
		frame.Longitude = v
	case FieldAltitude:
		frame.Altitude = v
	case FieldDischargeVolume:
		frame.DischargeVolume = v
	case FieldGasVolume:
		frame.GasVolume = v
	case FieldHorizontalSpeed:
		frame.HorizontalSpeed = &v
	case FieldClimbSpeed:
		frame.ClimbSpeed = &v
	case FieldZAcceleration:
		frame.ZAcceleration = &v
	case FieldFusionAltitude:
		frame.FusionAltitude = &v
	case FieldPressureAltitude:
		frame.PressureAltitude = &v
	case FieldGPSAltitude:
		frame.GPSAltitude = &v
	case FieldTargetAltitude:
		frame.TargetAltitude = &v
	case FieldPT100Temperature:
		frame.PT100Temperature = &v
	case FieldBoardTemperature:
		frame.BoardTemperature = &v
	case FieldBatteryVoltage:
		frame.BatteryVoltage = &v
	case FieldCapacitorVoltage:
		frame.CapacitorVoltage = &v
	case FieldVentingTime:
		frame.VentingTime = &v
	case FieldBallastQuantity:
		frame.BallastQuantity = &v
	}
}

// FieldIndex places a Field in a line. Negative indexes count from the end
// of the line, -1 being the last field.
type FieldIndex struct {
	Field Field
	Index int
}

// Revision is the field layout of one version of the wire protocol.
type Revision struct {
	Name      string
	MinFields int
	// TimeIndex is the HHMMSS field, negative counts from the end.
	TimeIndex    int
	StatusFields []int
	Fields       []FieldIndex

	// CommandPrefix is prepended to uplink commands, followed by the delimiter.
	CommandPrefix     string
	CommandTerminator string
}

// RevisionA is the legacy layout: position first, volumes and time at the tail.
var RevisionA = &Revision{
	Name:         "A",
	MinFields:    19,
	TimeIndex:    -1,
	StatusFields: []int{1, 2, 3, 10, 11, 12},
	Fields: []FieldIndex{
		{FieldLongitude, 6},
		{FieldLatitude, 7},
		{FieldAltitude, 8},
		{FieldDischargeVolume, -4},
		{FieldGasVolume, -3},
	},
	CommandPrefix:     "BXX",
	CommandTerminator: "\n",
}

// RevisionB is the current layout.
var RevisionB = &Revision{
	Name:         "B",
	MinFields:    19,
	TimeIndex:    2,
	StatusFields: []int{0, 1},
	Fields: []FieldIndex{
		{FieldHorizontalSpeed, 3},
		{FieldClimbSpeed, 4},
		{FieldZAcceleration, 5},
		{FieldLongitude, 6},
		{FieldLatitude, 7},
		{FieldAltitude, 8},
		{FieldFusionAltitude, 8},
		{FieldPressureAltitude, 9},
		{FieldGPSAltitude, 10},
		{FieldTargetAltitude, 12},
		{FieldPT100Temperature, 13},
		{FieldBoardTemperature, 14},
		{FieldBatteryVoltage, 15},
		{FieldCapacitorVoltage, 16},
		{FieldDischargeVolume, 17},
		{FieldVentingTime, 17},
		{FieldGasVolume, 18},
		{FieldBallastQuantity, 18},
	},
	CommandTerminator: "\r\n",
}

var revisions = map[string]*Revision{
	"a":      RevisionA,
	"legacy": RevisionA,
	"b":      RevisionB,
	"":       RevisionB,
}

// RevisionByName looks up a revision by name, case-insensitive. The empty
// name selects the current revision.
func RevisionByName(name string) (*Revision, error) {
	rev, ok := revisions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Errorf("unknown protocol revision %q", name)
	}
	return rev, nil
}

func (rev *Revision) resolve(index, count int) int {
	if index < 0 {
		return count + index
	}
	return index
}

// Decoder turns raw lines into frames for one protocol revision.
type Decoder struct {
	Revision *Revision
	Sentinel string
}

// NewDecoder creates a decoder. An empty sentinel uses DefaultSentinel.
func NewDecoder(rev *Revision, sentinel string) *Decoder {
	if rev == nil {
		rev = RevisionB
	}
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	return &Decoder{
		Revision: rev,
		Sentinel: sentinel,
	}
}

// IsTelemetry reports whether the leading token of the line is the sentinel.
func (d *Decoder) IsTelemetry(line string) bool {
	lead := line
	if i := strings.Index(line, fieldDelimiter); i >= 0 {
		lead = line[:i]
	}
	return strings.TrimSpace(lead) == d.Sentinel
}

// Decode parses a telemetry line. Lines without the sentinel are not
// telemetry and return a nil frame and nil error. Any short line or
// unparseable field rejects the whole frame with a *DecodeError.
func (d *Decoder) Decode(line string) (*TelemetryFrame, error) {
	line = strings.TrimRight(line, "\r\n")
	if !d.IsTelemetry(line) {
		return nil, nil
	}
	rev := d.Revision
	fields := strings.Split(line, fieldDelimiter)
	if len(fields) < rev.MinFields {
		return nil, &DecodeError{
			Line:   line,
			Reason: fmt.Sprintf("revision %s needs %d fields, got %d", rev.Name, rev.MinFields, len(fields)),
		}
	}

	frame := &TelemetryFrame{
		Revision: rev.Name,
		Raw:      line,
	}
	for _, idx := range rev.StatusFields {
		frame.StatusFields = append(frame.StatusFields, strings.TrimSpace(fields[rev.resolve(idx, len(fields))]))
	}

	for _, fi := range rev.Fields {
		i := rev.resolve(fi.Index, len(fields))
		v, err := parseDecimal(fields[i])
		if err != nil {
			return nil, &DecodeError{
				Line:   line,
				Field:  fi.Field.String(),
				Index:  i,
				Reason: "not a number",
				Err:    err,
			}
		}
		fi.Field.set(frame, v)
	}

	ti := rev.resolve(rev.TimeIndex, len(fields))
	tod := strings.TrimSpace(fields[ti])
	secs, err := ParseTimeOfDay(tod)
	if err != nil {
		return nil, &DecodeError{
			Line:   line,
			Field:  "time",
			Index:  ti,
			Reason: "invalid HHMMSS",
			Err:    err,
		}
	}
	frame.TimeOfDay = tod
	frame.SecondsSinceMidnight = secs
	return frame, nil
}

// ParseTimeOfDay converts exactly six HHMMSS digits into seconds since midnight.
func ParseTimeOfDay(s string) (int, error) {
	if len(s) != 6 {
		return 0, errors.Errorf("time %q is not 6 digits", s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("time %q contains a non-digit", s)
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[2]-'0')*10 + int(s[3]-'0')
	ss := int(s[4]-'0')*10 + int(s[5]-'0')
	if hh >= 24 || mm >= 60 || ss >= 60 {
		return 0, errors.Errorf("time %q out of range", s)
	}
	return hh*3600 + mm*60 + ss, nil
}

// parseDecimal accepts plain base-10 numbers only; hex floats, NaN and Inf
// are rejected even though strconv would take them.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			return 0, errors.Errorf("%q is not a decimal number", s)
		}
	}
	return strconv.ParseFloat(s, 64)
}
