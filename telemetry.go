package aerostat

import "fmt"

// TelemetryFrame is one decoded telemetry line. Fields that a protocol
// revision does not carry are left nil.
type TelemetryFrame struct {
	Revision string `json:"revision"`
	Raw      string `json:"raw"`

	StatusFields []string `json:"status_fields"`

	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Altitude        float64 `json:"altitude"`
	DischargeVolume float64 `json:"discharge_volume"`
	GasVolume       float64 `json:"gas_volume"`

	TimeOfDay            string `json:"time_of_day"`
	SecondsSinceMidnight int    `json:"seconds_since_midnight"`

	HorizontalSpeed  *float64 `json:"horizontal_speed,omitempty"`
	ClimbSpeed       *float64 `json:"climb_speed,omitempty"`
	ZAcceleration    *float64 `json:"z_acceleration,omitempty"`
	FusionAltitude   *float64 `json:"fusion_altitude,omitempty"`
	PressureAltitude *float64 `json:"pressure_altitude,omitempty"`
	GPSAltitude      *float64 `json:"gps_altitude,omitempty"`
	TargetAltitude   *float64 `json:"target_altitude,omitempty"`
	PT100Temperature *float64 `json:"pt100_temperature,omitempty"`
	BoardTemperature *float64 `json:"board_temperature,omitempty"`
	BatteryVoltage   *float64 `json:"battery_voltage,omitempty"`
	CapacitorVoltage *float64 `json:"capacitor_voltage,omitempty"`
	VentingTime      *float64 `json:"venting_time,omitempty"`
	BallastQuantity  *float64 `json:"ballast_quantity,omitempty"`
}

// HasFix reports whether the frame carries a usable position. A zero
// latitude or longitude means the receiver had no fix.
func (f *TelemetryFrame) HasFix() bool {
	return f.Latitude != 0 && f.Longitude != 0
}

// Clock formats SecondsSinceMidnight as HH:MM:SS.
func (f *TelemetryFrame) Clock() string {
	s := f.SecondsSinceMidnight
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// clone returns a deep copy, so the copy shares no memory with f.
func (f *TelemetryFrame) clone() TelemetryFrame {
	c := *f
	if f.StatusFields != nil {
		c.StatusFields = append([]string(nil), f.StatusFields...)
	}
	for _, p := range []**float64{
		&c.HorizontalSpeed,
		&c.ClimbSpeed,
		&c.ZAcceleration,
		&c.FusionAltitude,
		&c.PressureAltitude,
		&c.GPSAltitude,
		&c.TargetAltitude,
		&c.PT100Temperature,
		&c.BoardTemperature,
		&c.BatteryVoltage,
		&c.CapacitorVoltage,
		&c.VentingTime,
		&c.BallastQuantity,
	} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return c
}

// TrackPoint is a single position from a frame with a fix.
type TrackPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Frame is the index into the frame series this point came from.
	Frame int `json:"frame"`
}

// OutboundCommand is an operator ballast/gas instruction.
type OutboundCommand struct {
	Ballast string `json:"ballast"`
	Gas     string `json:"gas"`
}
