package aerostat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRevisionB(t *testing.T) {
	d := NewDecoder(RevisionB, "")
	line := "MXX,0,010203,1.2,0.3,-0.1,116.4,39.9,500,480,510,0,600,-20.5,15,11.8,4.9,7,3"

	frame, err := d.Decode(line)
	require.NoError(t, err)
	require.NotNil(t, frame)

	assert.Equal(t, "B", frame.Revision)
	assert.Equal(t, []string{"MXX", "0"}, frame.StatusFields)
	assert.Equal(t, 39.9, frame.Latitude)
	assert.Equal(t, 116.4, frame.Longitude)
	assert.Equal(t, 500.0, frame.Altitude)
	assert.Equal(t, 500.0, *frame.FusionAltitude)
	assert.Equal(t, 480.0, *frame.PressureAltitude)
	assert.Equal(t, 510.0, *frame.GPSAltitude)
	assert.Equal(t, 600.0, *frame.TargetAltitude)
	assert.Equal(t, 1.2, *frame.HorizontalSpeed)
	assert.Equal(t, 0.3, *frame.ClimbSpeed)
	assert.Equal(t, -0.1, *frame.ZAcceleration)
	assert.Equal(t, -20.5, *frame.PT100Temperature)
	assert.Equal(t, 15.0, *frame.BoardTemperature)
	assert.Equal(t, 11.8, *frame.BatteryVoltage)
	assert.Equal(t, 4.9, *frame.CapacitorVoltage)
	assert.Equal(t, 7.0, frame.DischargeVolume)
	assert.Equal(t, 7.0, *frame.VentingTime)
	assert.Equal(t, 3.0, frame.GasVolume)
	assert.Equal(t, 3.0, *frame.BallastQuantity)
	assert.Equal(t, "010203", frame.TimeOfDay)
	assert.Equal(t, 3723, frame.SecondsSinceMidnight)
	assert.Equal(t, "01:02:03", frame.Clock())
	assert.True(t, frame.HasFix())
}

func TestDecodeRevisionA(t *testing.T) {
	d := NewDecoder(RevisionA, "")
	line := "MXX,ok,ok,ok,20.1,55,116.4,39.9,1200,101325,0,0,1,9,9,45.5,80.2,9,235959"

	frame, err := d.Decode(line)
	require.NoError(t, err)
	require.NotNil(t, frame)

	assert.Equal(t, "A", frame.Revision)
	assert.Equal(t, []string{"ok", "ok", "ok", "0", "0", "1"}, frame.StatusFields)
	assert.Equal(t, 39.9, frame.Latitude)
	assert.Equal(t, 116.4, frame.Longitude)
	assert.Equal(t, 1200.0, frame.Altitude)
	assert.Equal(t, 45.5, frame.DischargeVolume)
	assert.Equal(t, 80.2, frame.GasVolume)
	assert.Equal(t, 86399, frame.SecondsSinceMidnight)
	assert.Nil(t, frame.HorizontalSpeed, "revision A has no speed field")
	assert.Nil(t, frame.FusionAltitude)
}

func TestDecodeRevisionALongerLine(t *testing.T) {
	d := NewDecoder(RevisionA, "")
	// tail offsets follow the end of the line
	line := "MXX,ok,ok,ok,20.1,55,116.4,39.9,1200,101325,0,0,1,9,9,1,2,3,45.5,80.2,9,000001"

	frame, err := d.Decode(line)
	require.NoError(t, err)
	assert.Equal(t, 45.5, frame.DischargeVolume)
	assert.Equal(t, 80.2, frame.GasVolume)
	assert.Equal(t, 1, frame.SecondsSinceMidnight)
}

func TestDecodeNonTelemetry(t *testing.T) {
	d := NewDecoder(RevisionB, "")
	for _, line := range []string{
		"",
		"hello world",
		"LOG,MXX is mentioned later,1,2",
		"LOG MXX link up, retrying",
		"MXXX,0,010203",
		"GPS lock acquired\r\n",
	} {
		frame, err := d.Decode(line)
		assert.NoError(t, err, line)
		assert.Nil(t, frame, line)
		assert.False(t, d.IsTelemetry(line), line)
	}
}

func TestDecodeCustomSentinel(t *testing.T) {
	d := NewDecoder(RevisionB, "TLM")
	line := strings.Replace(revBLine(1, 2, 3, "000000"), "MXX", "TLM", 1)
	frame, err := d.Decode(line)
	assert.NoError(t, err)
	assert.NotNil(t, frame)

	frame, err = d.Decode(revBLine(1, 2, 3, "000000"))
	assert.NoError(t, err)
	assert.Nil(t, frame, "MXX is not telemetry with a TLM sentinel")
}

func TestDecodeShortLine(t *testing.T) {
	d := NewDecoder(RevisionB, "")
	frame, err := d.Decode("MXX,1")
	assert.Nil(t, frame)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), "needs 19 fields, got 2")
}

func TestDecodeRejectsBadNumbers(t *testing.T) {
	d := NewDecoder(RevisionB, "")
	good := strings.Split(revBLine(39.9, 116.4, 500, "120000"), ",")

	cases := map[int]string{
		3:  "fast",
		6:  "",
		7:  "0x1p3",
		8:  "NaN",
		15: "Inf",
		18: "1_0",
	}
	for idx, val := range cases {
		fields := append([]string(nil), good...)
		fields[idx] = val
		frame, err := d.Decode(strings.Join(fields, ","))
		assert.Nil(t, frame, "index %d value %q", idx, val)
		assert.Error(t, err, "index %d value %q", idx, val)
	}

	fields := append([]string(nil), good...)
	fields[7] = "north"
	_, err := d.Decode(strings.Join(fields, ","))
	var decodeErr *DecodeError
	if assert.ErrorAs(t, err, &decodeErr) {
		assert.Equal(t, "latitude", decodeErr.Field)
		assert.Equal(t, 7, decodeErr.Index)
	}
}

func TestDecodeRejectsBadTime(t *testing.T) {
	d := NewDecoder(RevisionB, "")
	for _, tod := range []string{"12345", "1234567", "240000", "126000", "120060", "12a456", "-12345"} {
		frame, err := d.Decode(revBLine(39.9, 116.4, 500, tod))
		assert.Nil(t, frame, tod)
		var decodeErr *DecodeError
		if assert.ErrorAs(t, err, &decodeErr, tod) {
			assert.Equal(t, "time", decodeErr.Field)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	d := NewDecoder(RevisionB, "")
	for i := 0; i < 50; i++ {
		lat := float64(i) * 0.25
		lon := -float64(i) * 1.125
		alt := float64(i*i) + 0.5
		tod := fmt.Sprintf("%02d%02d%02d", i%24, (i*7)%60, (i*13)%60)

		frame, err := d.Decode(revBLine(lat, lon, alt, tod))
		if !assert.NoError(t, err) {
			continue
		}
		assert.Equal(t, lat, frame.Latitude)
		assert.Equal(t, lon, frame.Longitude)
		assert.Equal(t, alt, frame.Altitude)
		assert.Equal(t, (i%24)*3600+((i*7)%60)*60+(i*13)%60, frame.SecondsSinceMidnight)
		assert.Equal(t, 17.0, frame.DischargeVolume)
		assert.Equal(t, 18.0, frame.GasVolume)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	secs, err := ParseTimeOfDay("000000")
	assert.NoError(t, err)
	assert.Equal(t, 0, secs)

	secs, err = ParseTimeOfDay("235959")
	assert.NoError(t, err)
	assert.Equal(t, 86399, secs)
}

func TestRevisionByName(t *testing.T) {
	rev, err := RevisionByName("a")
	assert.NoError(t, err)
	assert.Equal(t, RevisionA, rev)

	rev, err = RevisionByName(" B ")
	assert.NoError(t, err)
	assert.Equal(t, RevisionB, rev)

	rev, err = RevisionByName("")
	assert.NoError(t, err)
	assert.Equal(t, RevisionB, rev)

	_, err = RevisionByName("z")
	assert.Error(t, err)
}
