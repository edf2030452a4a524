// Command healthcheck probes the health endpoint of a running `qamint serve`
// and exits non-zero when it does not answer 200. It is meant for container
// HEALTHCHECK directives where no shell or curl is available.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ericfisherdev/qamint/internal/config"
)

const probeTimeout = 2 * time.Second

func main() {
	os.Exit(check(os.Getenv("QAMINT_LISTEN_ADDR")))
}

func check(listenAddr string) int {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/api/v1/health", probeAddr(listenAddr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 1
	}

	resp, err := (&http.Client{Timeout: probeTimeout}).Do(req)
	if err != nil {
		return 1
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

// probeAddr maps a bind address to one the probe can dial: empty or
// unspecified hosts become loopback.
func probeAddr(raw string) string {
	if raw == "" {
		return config.DefaultListenAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return config.DefaultListenAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
