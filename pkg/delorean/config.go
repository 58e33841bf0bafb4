package delorean

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/AndrewLester/delorean/internal/rpc"
)

type deloreanConfig struct {
	listen  string
	workers int
	socket  string
	policy  []PolicyChange
}

// PolicyChange is one policy directive, from the config file, a flag or
// the control socket.
type PolicyChange = rpc.PolicyChange

const defaultWorkers = 1

func parseConfigFile(path string) (deloreanConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return deloreanConfig{}, fmt.Errorf("file at %s could not be read for configuration: %w", path, err)
	}
	defer file.Close()

	return parseConfig(file)
}

func parseConfig(r io.Reader) (deloreanConfig, error) {
	config := deloreanConfig{workers: defaultWorkers}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		arguments := strings.Fields(line)
		if len(arguments) == 0 || strings.HasPrefix(arguments[0], "#") {
			continue
		}

		switch arguments[0] {
		case "listen":
			if len(arguments) != 2 {
				return config, configParseError(lineNumber, "Missing required argument \"address\"")
			}
			if _, _, err := net.SplitHostPort(arguments[1]); err != nil {
				return config, configParseError(lineNumber, "Invalid address: ", arguments[1])
			}
			config.listen = arguments[1]
		case "workers":
			if len(arguments) != 2 {
				return config, configParseError(lineNumber, "Missing required argument \"count\"")
			}
			workers, err := strconv.Atoi(arguments[1])
			if err != nil || workers < 1 {
				return config, configParseError(lineNumber, "workers requires a positive integer value.")
			}
			config.workers = workers
		case "socket":
			if len(arguments) != 2 {
				return config, configParseError(lineNumber, "Missing required argument \"path\"")
			}
			config.socket = arguments[1]
		case "skim":
			if len(arguments) != 3 {
				return config, configParseError(lineNumber, "skim requires a threshold and a target")
			}
			for _, duration := range arguments[1:] {
				if _, err := ParseDuration(duration); err != nil {
					return config, configParseError(lineNumber, err)
				}
			}
			// Threshold first: the stored step is relative to it.
			config.policy = append(config.policy,
				PolicyChange{Kind: PolicySkimThreshold, Value: arguments[1]},
				PolicyChange{Kind: PolicySkimStep, Value: arguments[2]},
			)
		case "step", "horizon":
			if len(arguments) != 2 {
				return config, configParseError(lineNumber, "Missing required argument \"duration\"")
			}
			if _, err := ParseDuration(arguments[1]); err != nil {
				return config, configParseError(lineNumber, err)
			}
			config.policy = append(config.policy, PolicyChange{Kind: arguments[0], Value: arguments[1]})
		case "date":
			if len(arguments) != 3 {
				return config, configParseError(lineNumber, "date requires \"YYYY-MM-DD HH:MM[:SS]\"")
			}
			date := arguments[1] + " " + arguments[2]
			if _, err := ParseDate(date); err != nil {
				return config, configParseError(lineNumber, err)
			}
			config.policy = append(config.policy, PolicyChange{Kind: PolicyDate, Value: date})
		case "random":
			if len(arguments) != 1 {
				return config, configParseError(lineNumber, "random takes no arguments")
			}
			config.policy = append(config.policy, PolicyChange{Kind: PolicyRandom})
		default:
			return config, configParseError(lineNumber, "Invalid command: ", arguments[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return config, err
	}

	return config, nil
}

func configParseError(line int, args ...any) error {
	if len(args) == 1 {
		if err, ok := args[0].(error); ok {
			return fmt.Errorf("config parse error (line %d): %w", line, err)
		}
	}
	return fmt.Errorf("config parse error (line %d): %s", line, fmt.Sprint(args...))
}
