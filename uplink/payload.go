package uplink

import (
	"strconv"

	"github.com/jd3nn1s/aerostat"
)

// Payload is the body of a realTimeData call. The remote expects every
// value as a string.
type Payload struct {
	TaskID           string `json:"taskId"`
	Status           string `json:"status"`
	Longitude        string `json:"longitude"`
	GroundSpeed      string `json:"groundSpeed"`
	ClimbSpeed       string `json:"climbSpeed"`
	AcceleratedSpeed string `json:"acceleratedSpeed"`
	Latitude         string `json:"latitude"`
	FusionAltitude   string `json:"fusionAltitude"`
	PressureAltitude string `json:"pressureAltitude"`
	GPSAltitude      string `json:"gpsAltitude"`
	TargetAltitude   string `json:"targetAltitude"`
	PT100Temperature string `json:"pt100Temperature"`
	PCBTemperature   string `json:"pcbTemperature"`
	BatteryVoltage   string `json:"batteryVoltage"`
	CapacitorVoltage string `json:"capacitorVoltage"`
	VentingTime      string `json:"ventingTime"`
	BallastDropping  string `json:"ballastDropping"`
	Time             string `json:"time"`
}

func NewPayload(taskID, status string, frame *aerostat.TelemetryFrame) Payload {
	return Payload{
		TaskID:           taskID,
		Status:           status,
		Longitude:        formatFloat(frame.Longitude),
		GroundSpeed:      formatOptional(frame.HorizontalSpeed),
		ClimbSpeed:       formatOptional(frame.ClimbSpeed),
		AcceleratedSpeed: formatOptional(frame.ZAcceleration),
		Latitude:         formatFloat(frame.Latitude),
		FusionAltitude:   formatOr(frame.FusionAltitude, frame.Altitude),
		PressureAltitude: formatOptional(frame.PressureAltitude),
		GPSAltitude:      formatOptional(frame.GPSAltitude),
		TargetAltitude:   formatOptional(frame.TargetAltitude),
		PT100Temperature: formatOptional(frame.PT100Temperature),
		PCBTemperature:   formatOptional(frame.BoardTemperature),
		BatteryVoltage:   formatOptional(frame.BatteryVoltage),
		CapacitorVoltage: formatOptional(frame.CapacitorVoltage),
		VentingTime:      formatOr(frame.VentingTime, frame.DischargeVolume),
		BallastDropping:  formatOr(frame.BallastQuantity, frame.GasVolume),
		Time:             frame.TimeOfDay,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// legacy frames carry no dedicated field, fall back to the shared one
func formatOr(v *float64, fallback float64) string {
	if v == nil {
		return formatFloat(fallback)
	}
	return formatFloat(*v)
}
