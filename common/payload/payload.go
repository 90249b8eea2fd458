// Package payload renders a fix into the wire shapes the transports send.
//
// Coordinate precision and escaping live here so that the verbose (query
// string, JSON) and compact (radio) renderings cannot drift apart.
package payload

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samiam2013/gpsrelay/common/gps"
)

// Keys shared by the renderings.
const (
	KeyLatitude   = "lat"
	KeyLongitude  = "lon"
	KeySatellites = "satellite_count"
	KeyHDOP       = "horizontal_dilution"
	KeyAltitude   = "altitude_m"

	KeyDeviceID = "device_id"
	KeyAlive    = "alive"
	KeyBattery  = "battery_v"
)

// Field is one key/value pair. An empty Value means absent.
type Field struct {
	Key   string
	Value string
}

// Extras are context supplied fields appended to every payload, in order.
type Extras []Field

// Get returns the value stored under key, or "" if there is none.
func (e Extras) Get(key string) string {
	for _, f := range e {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Only returns the extras whose key is listed in keys, keeping their order.
func (e Extras) Only(keys ...string) Extras {
	var out Extras
	for _, f := range e {
		for _, k := range keys {
			if f.Key == k {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Fields returns the fix followed by extras as an ordered parameter list.
// Latitude and longitude are formatted with six decimals.
func Fields(fix gps.Fix, extras Extras) []Field {
	fields := []Field{
		{KeyLatitude, strconv.FormatFloat(fix.Latitude, 'f', 6, 64)},
		{KeyLongitude, strconv.FormatFloat(fix.Longitude, 'f', 6, 64)},
		{KeySatellites, fix.Satellites},
		{KeyHDOP, fix.HDOP},
		{KeyAltitude, fix.Altitude},
	}
	return append(fields, extras...)
}

// Query builds the GET URL for the network transport. Absent values are
// omitted rather than sent empty.
func Query(base string, fix gps.Fix, extras Extras) string {
	var sb strings.Builder
	for _, f := range Fields(fix, extras) {
		if f.Value == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(f.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(f.Value))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + sb.String()
}

// Compact builds the positional radio record
//
//	device_id,lat,lon,alive,battery_v
//
// with five decimal coordinates. Missing values leave their position empty.
func Compact(fix gps.Fix, extras Extras) string {
	return fmt.Sprintf("%s,%.5f,%.5f,%s,%s",
		extras.Get(KeyDeviceID),
		fix.Latitude,
		fix.Longitude,
		extras.Get(KeyAlive),
		extras.Get(KeyBattery),
	)
}

// Message is the JSON document published over MQTT.
type Message struct {
	DeviceID   string  `json:"device_id,omitempty"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Satellites string  `json:"satellite_count,omitempty"`
	HDOP       string  `json:"horizontal_dilution,omitempty"`
	Altitude   string  `json:"altitude_m,omitempty"`
	Time       string  `json:"time,omitempty"` // hhmmss.ss UTC, as sent by the receiver
	Alive      string  `json:"alive,omitempty"`
	Battery    string  `json:"battery_v,omitempty"`
}

// JSON renders the fix as a Message.
func JSON(fix gps.Fix, extras Extras) ([]byte, error) {
	return json.Marshal(Message{
		DeviceID:   extras.Get(KeyDeviceID),
		Latitude:   roundTo(fix.Latitude, 6),
		Longitude:  roundTo(fix.Longitude, 6),
		Satellites: fix.Satellites,
		HDOP:       fix.HDOP,
		Altitude:   fix.Altitude,
		Time:       fix.Time,
		Alive:      extras.Get(KeyAlive),
		Battery:    extras.Get(KeyBattery),
	})
}

func roundTo(v float64, decimals int) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	return r
}

// Record is a decoded radio record.
type Record struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Alive     string
	Battery   string
}

// ParseCompact decodes a line produced by Compact.
func ParseCompact(line string) (Record, error) {
	parts := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(parts) != 5 {
		return Record{}, fmt.Errorf("radio record has %d fields, want 5", len(parts))
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Record{}, fmt.Errorf("radio record latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Record{}, fmt.Errorf("radio record longitude: %w", err)
	}
	return Record{
		DeviceID:  parts[0],
		Latitude:  lat,
		Longitude: lon,
		Alive:     parts[3],
		Battery:   parts[4],
	}, nil
}
