package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/payload"
)

// HTTP delivers a fix as a single GET with the fix in the query string.
// Any completed request counts as delivered; the collector's status code is
// logged but not acted on.
type HTTP struct {
	endpoint    string
	extraParams []string
	client      *http.Client
	log         *logrus.Entry
}

// NewHTTP returns a backend for endpoint. Only the extras named in
// extraParams are added to the query string.
func NewHTTP(endpoint string, timeout time.Duration, extraParams []string) *HTTP {
	return &HTTP{
		endpoint:    endpoint,
		extraParams: extraParams,
		client:      &http.Client{Timeout: timeout},
		log:         logrus.WithField("transport", "network"),
	}
}

func (h *HTTP) Name() string          { return "network" }
func (h *HTTP) RequiresNetwork() bool { return true }

func (h *HTTP) Encode(fix gps.Fix, extras payload.Extras) ([]byte, error) {
	return []byte(payload.Query(h.endpoint, fix, extras.Only(h.extraParams...))), nil
}

func (h *HTTP) Send(ctx context.Context, p []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(p), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to collector: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	h.log.WithField("status", resp.StatusCode).Debug("Collector responded")
	return nil
}
