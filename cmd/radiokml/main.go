package main

// a simple command line tool to convert a log of received radio records to kml
//  and filtering out possibly bad data (zeros, malformed lines, etc)
//	in the process

import (
	"bufio"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/samiam2013/gpsrelay/common/payload"
)

type kml struct {
	XMLName  xml.Name `xml:"kml"`
	XMLNS    string   `xml:"xmlns,attr"`
	Document document `xml:"Document"`
}

type document struct {
	Name       string      `xml:"name"`
	Placemarks []placemark `xml:"Placemark"`
}

type placemark struct {
	Name       string      `xml:"name"`
	LineString *lineString `xml:"LineString,omitempty"`
	Point      *point      `xml:"Point,omitempty"`
}

type lineString struct {
	Coordinates string `xml:"coordinates"`
}

type point struct {
	Coordinates string `xml:"coordinates"`
}

func main() {
	// get the file argument
	var filepath string
	flag.StringVar(&filepath, "file", "radio.log", "Path to the radio record log to be converted to KML")
	out := flag.String("out", "", "Output file, stdout when empty")
	flag.Parse()
	// open file
	f, err := os.Open(filepath)
	if err != nil {
		log.Fatalf("Couldn't open file: %s", err.Error())
	}
	defer f.Close()

	tracks, skipped, err := readTracks(f)
	if err != nil {
		log.Fatalf("Couldn't read in data from radio log file: %s", err.Error())
	}
	if skipped > 0 {
		log.Printf("skipped %d bad records", skipped)
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		of, err := os.Create(*out)
		if err != nil {
			log.Fatalf("Couldn't create output file: %s", err.Error())
		}
		defer of.Close()
		w = of
	}
	if err := writeKML(w, filepath, tracks); err != nil {
		log.Fatalf("Couldn't write KML: %s", err.Error())
	}
}

// readTracks groups records by device in arrival order.
func readTracks(r io.Reader) (map[string][]payload.Record, int, error) {
	tracks := make(map[string][]payload.Record)
	skipped := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := payload.ParseCompact(line)
		if err != nil || rec.DeviceID == "" {
			skipped++
			continue
		}
		if rec.Latitude == 0.0 || rec.Latitude == rec.Longitude {
			//      Zeroes spotted in the data, skipping
			skipped++
			continue
		}
		tracks[rec.DeviceID] = append(tracks[rec.DeviceID], rec)
	}
	return tracks, skipped, sc.Err()
}

func writeKML(w io.Writer, name string, tracks map[string][]payload.Record) error {
	devices := make([]string, 0, len(tracks))
	for id := range tracks {
		devices = append(devices, id)
	}
	sort.Strings(devices)

	doc := kml{XMLNS: "http://www.opengis.net/kml/2.2", Document: document{Name: name}}
	for _, id := range devices {
		recs := tracks[id]
		coords := make([]string, len(recs))
		for i, r := range recs {
			coords[i] = fmt.Sprintf("%.5f,%.5f", r.Longitude, r.Latitude)
		}
		doc.Document.Placemarks = append(doc.Document.Placemarks,
			placemark{Name: id, LineString: &lineString{Coordinates: strings.Join(coords, " ")}},
			placemark{Name: id + " last", Point: &point{Coordinates: coords[len(coords)-1]}},
		)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
