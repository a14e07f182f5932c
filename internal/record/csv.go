package record

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// timestampLayout matches the CSV schema's "YYYY-MM-DD HH:MM:SS.ffffff".
const timestampLayout = "2006-01-02 15:04:05.000000"

// LoadCSV reads a header-required CSV file per spec.md §6's schema and
// returns one Record per well-formed row. Rows with a missing or
// unparseable timestamp are dropped and logged as a warning; the rest are
// returned in file order (the caller sorts by EffectiveTime).
//
// Recognized columns: timestamp (or time), latency_ms (or latency,
// default 0), index, bid_price, ask_price. Unrecognized columns are
// preserved verbatim in Record.Attrs.
func LoadCSV(path string, log logrus.FieldLogger) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}

	tsCol, hasTS := colIndex(cols, "timestamp", "time")
	latCol, hasLat := colIndex(cols, "latency_ms", "latency")

	var out []Record
	rowNum := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Warn("skipping malformed CSV row")
			rowNum++
			continue
		}
		rowNum++

		attrs := make(map[string]string, len(header))
		for name, idx := range cols {
			if idx < len(row) {
				attrs[name] = row[idx]
			}
		}

		if !hasTS {
			log.WithField("row", rowNum).Warn("CSV has no timestamp/time column; dropping row")
			continue
		}
		var raw string
		if tsCol < len(row) {
			raw = row[tsCol]
		}
		ts, err := time.Parse(timestampLayout, raw)
		if err != nil {
			log.WithField("row", rowNum).WithField("timestamp", raw).Warn("unparseable timestamp; dropping row")
			continue
		}

		var latency float64
		if hasLat && latCol < len(row) && row[latCol] != "" {
			latency, err = strconv.ParseFloat(row[latCol], 64)
			if err != nil {
				log.WithField("row", rowNum).WithField("latency", row[latCol]).Warn("unparseable latency_ms; defaulting to 0")
				latency = 0
			}
		}

		index := len(out)
		if idx, ok := attrs["index"]; ok && idx != "" {
			if n, err := strconv.Atoi(idx); err == nil {
				index = n
			}
		}

		// Normalize timestamp/latency_ms under canonical keys so downstream
		// consumers don't need to know which alias ("time"/"timestamp",
		// "latency"/"latency_ms") the source file used.
		attrs["timestamp"] = ts.Format(timestampLayout)
		attrs["latency_ms"] = strconv.FormatFloat(latency, 'f', -1, 64)

		out = append(out, Record{
			Index:           index,
			SourceTimestamp: ts,
			LatencyMS:       latency,
			Attrs:           attrs,
		})
	}

	log.WithField("count", len(out)).WithField("path", path).Info("loaded historical rows")
	return out, nil
}

func colIndex(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}
