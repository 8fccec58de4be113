package compute

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Schema names a telemetry CSV layout.
type Schema string

const (
	// SchemaV1 is one header line followed by rows of
	// device,timestamp,cpu,ram,disk,uptime,temp,indoor,status,lat,lon.
	SchemaV1 Schema = "v1"

	// SchemaV2 has no header; device at 0, cpu/ram/disk at 2-4, status at 10.
	SchemaV2 Schema = "v2"
)

// layout holds column offsets. -1 marks a column the layout does not carry.
type layout struct {
	header    bool
	device    int
	timestamp int
	cpu       int
	ram       int
	disk      int
	temp      int
	status    int
}

var layouts = map[Schema]layout{
	SchemaV1: {header: true, device: 0, timestamp: 1, cpu: 2, ram: 3, disk: 4, temp: 6, status: 8},
	SchemaV2: {header: false, device: 0, timestamp: -1, cpu: 2, ram: 3, disk: 4, temp: -1, status: 10},
}

// Sample is one parsed telemetry row. Metrics that failed to parse are NaN.
type Sample struct {
	DeviceCode string
	Timestamp  string
	CPU        float64
	RAM        float64
	Disk       float64
	TempC      float64
	Status     string
}

// row is a parsed sample plus the bookkeeping needed for error context.
type row struct {
	line      int
	sample    Sample
	malformed []malformedField
}

type malformedField struct {
	name  string
	value string
}

// parseRows decodes content with the given layout and calls fn for each
// data row. Blank lines are ignored. Missing trailing fields read as empty.
func parseRows(content []byte, l layout, fn func(row) error) error {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			if l.header {
				continue
			}
		}
		line, _ := r.FieldPos(0)
		if err := fn(decode(rec, l, line)); err != nil {
			return err
		}
	}
}

func decode(rec []string, l layout, line int) row {
	out := row{line: line}
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	metric := func(name string, i int) float64 {
		if i < 0 {
			return math.NaN()
		}
		raw := field(i)
		v, ok := parseMetric(raw)
		if !ok {
			out.malformed = append(out.malformed, malformedField{name: name, value: raw})
		}
		return v
	}

	out.sample = Sample{
		DeviceCode: field(l.device),
		Timestamp:  field(l.timestamp),
		CPU:        metric("cpu", l.cpu),
		RAM:        metric("ram", l.ram),
		Disk:       metric("disk", l.disk),
		Status:     field(l.status),
	}
	// Temperature is informational only; it never affects scoring.
	if l.temp >= 0 {
		out.sample.TempC, _ = parseMetric(field(l.temp))
	} else {
		out.sample.TempC = math.NaN()
	}
	return out
}

// parseMetric parses a plain decimal percentage, optionally suffixed with
// "%". Anything else, including an empty field, infinities and hex
// literals, yields NaN and false.
func parseMetric(s string) (float64, bool) {
	s = strings.TrimSuffix(s, "%")
	if !isDecimal(s) {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// isDecimal reports whether s is [+-]digits[.digits][e[+-]digits] with at
// least one mantissa digit.
func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := i
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		}
		if i == exp {
			return false
		}
	}
	return i == len(s)
}

// ParseError reports a malformed telemetry field under the strict policy.
type ParseError struct {
	Key        string
	Row        int
	DeviceCode string
	Field      string
	Value      string
	Err        error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compute: %s row %d: %v", e.Key, e.Row, e.Err)
	}
	return fmt.Sprintf("compute: %s row %d: device %q: malformed %s %q", e.Key, e.Row, e.DeviceCode, e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }
