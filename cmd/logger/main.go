package main

// prints every fix the relay would accept, straight off the receiver, for
// checking antenna placement without a collector

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samiam2013/gpsrelay/common/gps"
)

func main() {
	device := flag.String("device", "/dev/ttyACM0", "GPS serial device")
	baud := flag.Int("baud", 9600, "GPS baud rate")
	verbose := flag.Bool("v", false, "Log rejected sentences")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	port, err := gps.OpenSerial(*device, *baud, time.Second)
	if err != nil {
		logrus.WithError(err).Fatal("Could not open serial port")
	}
	defer port.Close()

	for {
		line, ok, err := port.ReadLine()
		if err != nil {
			logrus.WithError(err).Fatal("Error reading serial port")
		}
		if !ok {
			continue
		}
		fix, err := gps.Extract(string(line))
		if err != nil {
			if !errors.Is(err, gps.ErrSentenceType) {
				logrus.WithError(err).Debugf("rejected %q", line)
			}
			continue
		}
		fmt.Printf("%d,%f,%f,%s,%s,%s\n", time.Now().UnixMicro(), fix.Latitude, fix.Longitude, fix.Satellites, fix.HDOP, fix.Altitude)
	}
}
