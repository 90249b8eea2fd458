package gps

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/adrianmo/go-nmea"
)

// SentenceTag is the only sentence type the relay consumes.
const SentenceTag = "$GPGGA"

// minFields is the number of comma separated fields needed to reach altitude.
const minFields = 10

var (
	ErrTruncated    = errors.New("gps: truncated sentence")
	ErrSentenceType = errors.New("gps: not a GGA sentence")
	ErrNoFix        = errors.New("gps: no fix")
	ErrChecksum     = errors.New("gps: checksum mismatch")
	ErrCoordinate   = errors.New("gps: bad coordinate")
)

// Fields holds the raw, unconverted GGA fields the relay cares about.
//
//	0: $GPGGA
//	1: time (hhmmss.ss)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
type Fields struct {
	Time          string
	Latitude      string
	LatHemisphere string
	Longitude     string
	LonHemisphere string
	Quality       string
	Satellites    string
	HDOP          string
	Altitude      string
}

// Fix is a validated position. Optional fields keep the receiver's raw text,
// an empty string means the receiver left the field blank.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Satellites string
	HDOP       string
	Altitude   string
	Quality    string
	Time       string
}

// Validate classifies line as a GGA sentence with a fix and returns its raw fields.
func Validate(line string) (Fields, error) {
	line = strings.TrimSpace(line)
	body, err := stripChecksum(line)
	if err != nil {
		return Fields{}, err
	}

	parts := strings.Split(body, ",")
	if len(parts) < minFields {
		return Fields{}, ErrTruncated
	}
	if parts[0] != SentenceTag {
		return Fields{}, ErrSentenceType
	}
	if parts[6] == "" || parts[6] == "0" {
		return Fields{}, ErrNoFix
	}

	return Fields{
		Time:          parts[1],
		Latitude:      parts[2],
		LatHemisphere: parts[3],
		Longitude:     parts[4],
		LonHemisphere: parts[5],
		Quality:       parts[6],
		Satellites:    parts[7],
		HDOP:          parts[8],
		Altitude:      parts[9],
	}, nil
}

// stripChecksum verifies and removes a trailing "*hh" checksum. Receivers that
// omit the checksum are passed through untouched.
func stripChecksum(line string) (string, error) {
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return line, nil
	}
	body := line[:star]
	sum := strings.ToUpper(strings.TrimSpace(line[star+1:]))
	if len(sum) < 2 || !strings.HasPrefix(body, "$") {
		return "", ErrChecksum
	}
	if nmea.Checksum(body[1:]) != sum[:2] {
		return "", ErrChecksum
	}
	return body, nil
}

// ConvertCoordinate turns an NMEA ddmm.mmmm (latitude) or dddmm.mmmm
// (longitude) value into signed decimal degrees. The second return value is
// false when the input cannot be converted.
func ConvertCoordinate(raw string, isLatitude bool, hemisphere string) (float64, bool) {
	if raw == "" || hemisphere == "" {
		return 0, false
	}
	degLen := 3
	if isLatitude {
		degLen = 2
	}
	if len(raw) <= degLen {
		return 0, false
	}

	deg, err := strconv.Atoi(raw[:degLen])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(raw[degLen:], 64)
	if err != nil || math.IsNaN(mins) || math.IsInf(mins, 0) {
		return 0, false
	}

	value := float64(deg) + mins/60.0
	if hemisphere == "S" || hemisphere == "W" {
		value = -value
	}
	return value, true
}

// Extract returns the fix carried by line. A sentence is rejected as a whole
// if either coordinate fails to convert.
func Extract(line string) (Fix, error) {
	f, err := Validate(line)
	if err != nil {
		return Fix{}, err
	}
	lat, ok := ConvertCoordinate(f.Latitude, true, f.LatHemisphere)
	if !ok {
		return Fix{}, ErrCoordinate
	}
	lon, ok := ConvertCoordinate(f.Longitude, false, f.LonHemisphere)
	if !ok {
		return Fix{}, ErrCoordinate
	}
	return Fix{
		Latitude:   lat,
		Longitude:  lon,
		Satellites: f.Satellites,
		HDOP:       f.HDOP,
		Altitude:   f.Altitude,
		Quality:    f.Quality,
		Time:       f.Time,
	}, nil
}
