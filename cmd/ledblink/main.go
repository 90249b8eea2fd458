package main

// blinks the status LED so the wiring can be checked before deploying

import (
	"flag"
	"log"
	"time"

	"github.com/samiam2013/gpsrelay/common/indicator"
)

func main() {
	pin := flag.String("pin", "GPIO17", "periph pin name of the status LED")
	period := flag.Duration("period", 500*time.Millisecond, "time between toggles")
	count := flag.Int("count", 0, "number of toggles, 0 blinks forever")
	flag.Parse()

	led, err := indicator.Open(*pin)
	if err != nil {
		log.Fatalf("Failed to open status LED: %s", err.Error())
	}
	defer led.Off()

	t := time.NewTicker(*period)
	defer t.Stop()
	for i := 0; *count == 0 || i < *count; i++ {
		led.Toggle()
		<-t.C
	}
}
