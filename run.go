package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samiam2013/gpsrelay/common/config"
	"github.com/samiam2013/gpsrelay/common/connectivity"
	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/indicator"
	"github.com/samiam2013/gpsrelay/common/payload"
	"github.com/samiam2013/gpsrelay/common/relay"
	"github.com/samiam2013/gpsrelay/common/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func run(ctx context.Context, cfg config.Config) error {
	ind := openIndicator(cfg.LED.Pin)
	defer ind.Off()

	// open the gps dongle first; without it there is nothing to relay
	port, err := gps.OpenSerial(cfg.GPS.Device, cfg.GPS.Baud, cfg.GPS.ReadTimeout)
	if err != nil {
		return err
	}
	defer port.Close()
	logrus.WithFields(logrus.Fields{"device": cfg.GPS.Device, "baud": cfg.GPS.Baud}).Info("GPS serial port opened")

	var mgr *connectivity.Manager
	if cfg.NeedsNetwork() {
		mgr = newConnectivity(cfg, ind)
	}
	transportName, conn, err := selectTransport(ctx, cfg, mgr)
	if err != nil {
		// interrupted while associating
		return nil
	}

	backend, closer, err := openBackend(cfg, transportName)
	if err != nil {
		return err
	}
	defer closer.Close()

	sched := relay.New(relay.Options{
		Source:       port,
		Backend:      transport.WithIndicator(backend, ind),
		Connectivity: conn,
		Indicator:    ind,
		Extras:       extras(cfg),
		MinInterval:  cfg.MinSendInterval,
		IdleWait:     cfg.IdleWait,
		Pause:        cfg.Pause,
	})
	err = sched.Run(ctx)
	logrus.WithField("stats", fmt.Sprintf("%+v", sched.Stats())).Info("Relay stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openIndicator(pin string) indicator.Indicator {
	if pin == "" {
		return indicator.Nop{}
	}
	led, err := indicator.Open(pin)
	if err != nil {
		logrus.WithError(err).Warn("Status LED unavailable")
		return indicator.Nop{}
	}
	return led
}

func newConnectivity(cfg config.Config, ind indicator.Indicator) *connectivity.Manager {
	var assoc connectivity.Associator = connectivity.Assumed{}
	if cfg.WiFi.SSID != "" {
		assoc = &connectivity.NMCLI{
			SSID:      cfg.WiFi.SSID,
			Password:  cfg.WiFi.Password,
			Interface: cfg.WiFi.Interface,
		}
	}
	return connectivity.NewManager(assoc, ind, cfg.WiFi.ConnectTimeout, cfg.WiFi.PollInterval)
}

// selectTransport joins the network when mgr is set and picks the transport
// to run with. A failed association never stops the relay: it degrades to
// radio when configured, otherwise every eligible fix is still attempted on
// the configured transport and failures back off through the throttle.
// The only error is ctx ending.
func selectTransport(ctx context.Context, cfg config.Config, mgr *connectivity.Manager) (string, relay.Readiness, error) {
	if mgr == nil {
		return cfg.Transport, nil, nil
	}
	err := mgr.Connect(ctx)
	if err == nil {
		return cfg.Transport, mgr, nil
	}
	if ctx.Err() != nil {
		return "", nil, ctx.Err()
	}
	if cfg.FallbackToRadio {
		logrus.WithError(err).Warn("Network unavailable, falling back to radio")
		return config.TransportRadio, nil, nil
	}
	logrus.WithError(err).WithField("transport", cfg.Transport).Error("Network unavailable, sending anyway")
	return cfg.Transport, nil, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

func openBackend(cfg config.Config, name string) (transport.Backend, io.Closer, error) {
	switch name {
	case config.TransportNetwork:
		return transport.NewHTTP(cfg.Network.Endpoint, cfg.Network.RequestTimeout, cfg.Network.ExtraParams), nopCloser, nil
	case config.TransportRadio:
		return transport.OpenRadio(cfg.Radio.Device, cfg.Radio.Baud)
	case config.TransportMQTT:
		m, disconnect, err := transport.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, cfg.MQTT.PublishTimeout)
		if err != nil {
			return nil, nil, err
		}
		return m, closerFunc(func() error { disconnect(); return nil }), nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", name)
	}
}

// extras are the context fields sent with every fix. battery_v stays empty
// until the hardware has a voltage sense line.
func extras(cfg config.Config) payload.Extras {
	return payload.Extras{
		{Key: payload.KeyDeviceID, Value: cfg.DeviceID},
		{Key: payload.KeyAlive, Value: "1"},
	}
}
