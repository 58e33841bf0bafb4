package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AndrewLester/delorean/pkg/delorean"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sevlyar/go-daemon"
)

const defaultConfigPath = "/etc/delorean.conf"

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var config string
	var socket string
	var query string
	var noDaemon bool
	var showUI bool
	var stop bool
	var workers int
	var skimThreshold, skimStep, step, date, horizon string
	var random bool
	flag.StringVar(&config, "config", defaultConfigPath, "Path to the delorean config file.")
	flag.StringVar(&socket, "socket", "", "Path to the control socket.")
	flag.StringVar(&query, "query", "", "Address to query.")
	flag.StringVar(&query, "q", query, "Address to query.")
	flag.BoolVar(&noDaemon, "no-daemon", false, "Don't run delorean as a daemon.")
	flag.BoolVar(&showUI, "ui", false, "Show the status of a running daemon.")
	flag.BoolVar(&stop, "stop", false, "Stop a running daemon.")
	flag.IntVar(&workers, "workers", 0, "Number of receive goroutines.")
	flag.StringVar(&skimThreshold, "skim-threshold", "", "Start creeping this far ahead of the client's clock (e.g. 1d).")
	flag.StringVar(&skimStep, "skim-step", "", "Creep the client's clock toward this offset (e.g. 7d).")
	flag.StringVar(&step, "step", "", "Jump clients by this much (e.g. 90d, 3M, 1y).")
	flag.StringVar(&date, "date", "", "Report this date (\"YYYY-MM-DD HH:MM[:SS]\").")
	flag.StringVar(&horizon, "horizon", "", "Start the aligned date search this far out (e.g. 12w).")
	flag.BoolVar(&random, "random", false, "Report a random future time per client.")
	flag.Parse()

	// The default path is optional; an explicit one is not.
	if config == defaultConfigPath {
		if _, err := os.Stat(config); errors.Is(err, os.ErrNotExist) {
			config = ""
		}
	}

	system := delorean.NewSystem(os.Getenv("NTP_HOST"), os.Getenv("NTP_PORT"), config, socket)

	if query != "" {
		handleQueryCommand(query)
		return
	}

	if stop {
		if err := killDaemon(); err != nil {
			log.Fatal().Err(err).Msg("Unable to stop")
		}
		fmt.Printf("Successfully stopped %s daemon.\n", daemonName)
		return
	}

	if showUI {
		resolved, err := system.ResolveSocket()
		if err != nil {
			log.Fatal().Err(err).Msg("Unable to find control socket")
		}
		handleDeloreanUI(resolved)
		return
	}

	policy := []delorean.PolicyChange{
		{Kind: delorean.PolicySkimThreshold, Value: skimThreshold},
		{Kind: delorean.PolicySkimStep, Value: skimStep},
		{Kind: delorean.PolicyStep, Value: step},
		{Kind: delorean.PolicyDate, Value: date},
		{Kind: delorean.PolicyHorizon, Value: horizon},
	}
	if random {
		policy = append(policy, delorean.PolicyChange{Kind: delorean.PolicyRandom})
	}
	for _, change := range policy {
		if change.Value == "" && change.Kind != delorean.PolicyRandom {
			continue
		}
		if err := system.Apply(change); err != nil {
			log.Fatal().Err(err).Str("flag", change.Kind).Msg("Invalid flag")
		}
	}
	if workers != 0 {
		if err := system.SetWorkers(workers); err != nil {
			log.Fatal().Err(err).Msg("Invalid flag")
		}
	}

	if err := run(system, noDaemon); err != nil {
		log.Fatal().Err(err).Msg("Unable to run")
	}
}

func run(system *delorean.DeloreanSystem, noDaemon bool) error {
	if !noDaemon {
		d, err := daemonCtx.Reborn()
		if err != nil {
			if errors.Is(err, daemon.ErrWouldBlock) {
				if err := killDaemon(); err != nil {
					return err
				}
				fmt.Printf("Successfully stopped %s daemon.\n", daemonName)
				return nil
			}
			return err
		}
		if d != nil {
			fmt.Printf("Daemon process (%s, %d) started successfully.\n", daemonName, d.Pid)
			return nil
		}
		defer daemonCtx.Release()

		log.Info().Strs("args", os.Args).Msg("daemon started")
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Info().Str("signal", sig.String()).Msg("Stopping")
		system.Stop()
	}()

	return system.Start()
}
