package connectivity

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// NMCLI associates a wireless interface as a client through NetworkManager.
type NMCLI struct {
	SSID      string
	Password  string
	Interface string

	connectErr chan error
}

// Associate asks NetworkManager to join the network without waiting for the
// result; Associated picks the outcome up while the Manager polls.
func (n *NMCLI) Associate(ctx context.Context) error {
	iface := n.iface()
	// make sure NetworkManager is allowed to drive the interface
	_ = exec.CommandContext(ctx, "nmcli", "dev", "set", iface, "managed", "yes").Run()

	args := []string{"device", "wifi", "connect", n.SSID, "ifname", iface}
	if n.Password != "" {
		args = append(args, "password", n.Password)
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "nmcli", args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start nmcli: %w", err)
	}

	n.connectErr = make(chan error, 1)
	go func(done chan<- error) {
		if err := cmd.Wait(); err != nil {
			done <- fmt.Errorf("nmcli connect: %v, output: %s", err, strings.TrimSpace(out.String()))
			return
		}
		done <- nil
	}(n.connectErr)
	return nil
}

// Associated reports whether the interface is in the connected state. A
// failed connect attempt is returned as an error once.
func (n *NMCLI) Associated(ctx context.Context) (bool, error) {
	if n.connectErr != nil {
		select {
		case err := <-n.connectErr:
			n.connectErr = nil
			if err != nil {
				return false, err
			}
		default:
		}
	}

	out, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "DEVICE,STATE", "device").Output()
	if err != nil {
		return false, fmt.Errorf("nmcli device status: %w", err)
	}
	return deviceConnected(out, n.iface()), nil
}

func (n *NMCLI) iface() string {
	if n.Interface == "" {
		return "wlan0"
	}
	return n.Interface
}

// deviceConnected scans terse `nmcli -t -f DEVICE,STATE device` output.
func deviceConnected(out []byte, iface string) bool {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		dev, state, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || dev != iface {
			continue
		}
		// newer NetworkManager reports "connected (externally)" for links it did not bring up
		return state == "connected" || strings.HasPrefix(state, "connected (")
	}
	return false
}
