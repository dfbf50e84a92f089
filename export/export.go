// Package export writes a flight's frame series to a spreadsheet or CSV file.
package export

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jd3nn1s/aerostat"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Serial Data"
	DefaultPath = "serial_data.xlsx"
)

var Header = []string{"Time", "Latitude", "Longitude", "Altitude", "Discharge Volume", "Gas Volume"}

type Format int

const (
	XLSX Format = iota
	CSV
)

// FormatFromPath picks the output format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return XLSX, nil
	case ".csv":
		return CSV, nil
	}
	return 0, errors.Errorf("unsupported export format %q", filepath.Ext(path))
}

// Row is one exported frame. Latitude and Longitude are nil for frames
// without a fix.
type Row struct {
	Time            int
	Latitude        *float64
	Longitude       *float64
	Altitude        float64
	DischargeVolume float64
	GasVolume       float64
}

// Rows returns one row per frame, in arrival order.
func Rows(view aerostat.FlightStateView) []Row {
	rows := make([]Row, len(view.Frames))
	for i := range view.Frames {
		f := &view.Frames[i]
		rows[i] = Row{
			Time:            f.SecondsSinceMidnight,
			Altitude:        f.Altitude,
			DischargeVolume: f.DischargeVolume,
			GasVolume:       f.GasVolume,
		}
		if f.HasFix() {
			lat, lon := f.Latitude, f.Longitude
			rows[i].Latitude = &lat
			rows[i].Longitude = &lon
		}
	}
	return rows
}

// Export writes view to path. A failed export may leave a partial file.
func Export(view aerostat.FlightStateView, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	rows := Rows(view)
	switch format {
	case CSV:
		err = writeCSV(rows, path)
	default:
		err = writeXLSX(rows, path)
	}
	if err != nil {
		return err
	}

	entry := log.WithField("path", path).
		WithField("rows", humanize.Comma(int64(len(rows))))
	if st, err := os.Stat(path); err == nil {
		entry = entry.WithField("size", humanize.Bytes(uint64(st.Size())))
	}
	entry.Info("flight exported")
	return nil
}

func (r Row) values() []interface{} {
	ret := []interface{}{r.Time, nil, nil, r.Altitude, r.DischargeVolume, r.GasVolume}
	if r.Latitude != nil {
		ret[1] = *r.Latitude
	}
	if r.Longitude != nil {
		ret[2] = *r.Longitude
	}
	return ret
}

func (r Row) strings() []string {
	return []string{
		strconv.Itoa(r.Time),
		formatOptional(r.Latitude),
		formatOptional(r.Longitude),
		formatFloat(r.Altitude),
		formatFloat(r.DischargeVolume),
		formatFloat(r.GasVolume),
	}
}

func writeXLSX(rows []Row, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return errors.Wrap(err, "unable to name sheet")
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return errors.Wrap(err, "unable to create sheet writer")
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return errors.Wrap(err, "unable to write header")
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row.values()); err != nil {
			return errors.Wrapf(err, "unable to write row %d", i+1)
		}
	}
	if err := sw.Flush(); err != nil {
		return errors.Wrap(err, "unable to flush sheet")
	}
	return errors.Wrapf(f.SaveAs(path), "unable to save %s", path)
}

func writeCSV(rows []Row, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	cw := csv.NewWriter(bw)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "unable to write header")
	}
	for _, row := range rows {
		if err := cw.Write(row.strings()); err != nil {
			return errors.Wrap(err, "unable to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "unable to write csv")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrapf(err, "unable to flush %s", path)
	}
	return errors.Wrapf(file.Close(), "unable to close %s", path)
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
