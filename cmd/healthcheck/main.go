// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the gateway's /health endpoint returns HTTP
// 200, and 1 otherwise. Compile with CGO_ENABLED=0 for a fully static binary.
package main

import (
	"net/http"
	"os"
)

func main() {
	port := os.Getenv("GATEWAY_PORT")
	if port == "" {
		port = "8080"
	}
	resp, err := http.Get("http://localhost:" + port + "/health")
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
