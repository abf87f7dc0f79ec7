// Command stunprobe is the bundled test front-end for the stunnat library:
// it parses a host:port, runs one discovery call, and prints the verdict.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moepig/stun-discovery"
	"github.com/moepig/stun-discovery/internal/hostport"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "stunprobe:", err)
		os.Exit(2)
	}

	logger, err := buildLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stunprobe: building logger:", err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server, err := hostport.Resolve(ctx, cfg.Server)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stunprobe:", err)
		os.Exit(2)
	}

	var localBind *stunnat.Endpoint
	if cfg.LocalBind != "" {
		localBind, err = hostport.Resolve(ctx, cfg.LocalBind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "stunprobe: local-bind:", err)
			os.Exit(2)
		}
	}

	runCfg := stunnat.Config{
		ReceiveTimeout: time.Duration(cfg.ReceiveTimeout) * time.Millisecond,
		LocalBind:      localBind,
		Logger:         stunnat.NewRunLogger(logger),
	}

	result, err := stunnat.Query(server.String(), parseVariant(cfg.Variant), parseQueryType(cfg.QueryType), runCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stunprobe:", err)
		os.Exit(2)
	}

	printResult(result)

	if result.QueryError != stunnat.Success {
		fmt.Fprintln(os.Stderr, result.QueryError.String())
		os.Exit(1)
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func parseVariant(s string) stunnat.DiscoveryVariant {
	if strings.EqualFold(s, "rfc5780") {
		return stunnat.Rfc5780
	}
	return stunnat.Rfc3489
}

func parseQueryType(s string) stunnat.QueryType {
	switch strings.ToLower(s) {
	case "public-ip":
		return stunnat.PublicIP
	case "open-nat":
		return stunnat.OpenNAT
	default:
		return stunnat.ExactNAT
	}
}

func printResult(r *stunnat.QueryResult) {
	fmt.Printf("query_error: %s\n", r.QueryError)
	if r.PublicEndpoint != nil {
		fmt.Printf("public_endpoint: %s\n", r.PublicEndpoint)
	}
	if r.DiscoveryVariant == stunnat.Rfc3489 {
		fmt.Printf("nat_type: %s\n", r.NATType)
	} else {
		fmt.Printf("mapping_behavior: %s\n", r.MappingBehavior)
		fmt.Printf("filtering_behavior: %s\n", r.FilteringBehavior)
		fmt.Printf("nat_type: %s\n", r.NATType)
	}
	if r.QueryError == stunnat.ServerError {
		fmt.Printf("server_error: %d %s\n", r.ServerError, r.ServerErrorPhrase)
	}
}
