package main

import (
	"encoding/json"
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/AndrewLester/delorean/internal/metrics"
	"github.com/AndrewLester/delorean/internal/rpc"
	"github.com/AndrewLester/delorean/internal/templates"
	"github.com/AndrewLester/delorean/pkg/delorean"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var socket string
	flag.StringVar(&socket, "socket", delorean.DefaultSocket, "Path to the delorean control socket.")
	flag.Parse()

	port := os.Getenv("REPORT_PORT")
	if port == "" {
		port = "8080"
	}
	host := os.Getenv("REPORT_HOST")

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		status, err := fetchStatus(socket)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		if err := templates.TemplateExecutor.ExecuteTemplate(w, "status.tmpl.html", status); err != nil {
			log.Error().Err(err).Msg("Rendering status page")
		}
	})

	http.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status, err := fetchStatus(socket)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	registry := metrics.NewRegistry(func() (rpc.Status, error) { return fetchStatus(socket) })
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	address := net.JoinHostPort(host, port)
	log.Info().Str("address", address).Str("socket", socket).Msg("listening")
	log.Fatal().Err(http.ListenAndServe(address, nil)).Msg("report server exited")
}

func fetchStatus(socket string) (rpc.Status, error) {
	var status rpc.Status

	client, err := rpc.Dial(socket)
	if err != nil {
		return status, err
	}
	defer client.Close()

	err = client.Call(rpc.FetchStatusMethod, 0, &status)
	return status, err
}
