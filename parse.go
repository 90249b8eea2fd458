package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/samiam2013/gpsrelay/common/config"
	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/payload"
	"github.com/samiam2013/gpsrelay/common/transport"
)

var showRejected bool

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Print the fixes and payloads a capture of NMEA sentences would produce",
	Long: "parse reads NMEA sentences from a file (or stdin) and prints every accepted\n" +
		"fix together with the payload the configured transport would send. No\n" +
		"hardware is touched and nothing is sent.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return parseStream(in, cmd.OutOrStdout(), encoderFor(cfg), extras(cfg), showRejected)
	},
}

func init() {
	parseCmd.Flags().BoolVar(&showRejected, "rejected", false, "Also print rejected sentences and why")
}

type encodeFunc func(gps.Fix, payload.Extras) ([]byte, error)

func encoderFor(cfg config.Config) encodeFunc {
	switch cfg.Transport {
	case config.TransportRadio:
		return transport.NewRadio(io.Discard).Encode
	case config.TransportMQTT:
		return payload.JSON
	default:
		return transport.NewHTTP(cfg.Network.Endpoint, cfg.Network.RequestTimeout, cfg.Network.ExtraParams).Encode
	}
}

func parseStream(in io.Reader, out io.Writer, encode encodeFunc, ex payload.Extras, showRejected bool) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 256), 4096)
	var accepted, rejected int
	for sc.Scan() {
		line := sc.Text()
		fix, err := gps.Extract(line)
		if err != nil {
			rejected++
			if showRejected {
				fmt.Fprintf(out, "reject %q: %v\n", line, err)
			}
			continue
		}
		accepted++
		p, err := encode(fix, ex)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "fix lat=%.6f lon=%.6f -> %s\n", fix.Latitude, fix.Longitude, p)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d accepted, %d rejected\n", accepted, rejected)
	return nil
}
