// Command probeconfig validates a fleet configuration file offline, without
// standing up a worker instance, and prints the resulting validation report.
package main

import (
	"fmt"
	"os"

	"github.com/watchkeeper/watchkeeper/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <fleet-config.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	path := os.Args[1]

	spec, err := config.LoadFleet(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", path, err)
		os.Exit(1)
	}

	fleet, report := config.Validate(spec, 0)

	for _, w := range report.Warnings {
		fmt.Printf("WARN  %s\n", w)
	}
	for _, e := range report.Errors {
		fmt.Printf("ERROR %s\n", e)
	}

	if !report.OK() {
		fmt.Println("validation failed")
		os.Exit(1)
	}

	fmt.Printf("validation passed: %d endpoints, %d connections, %d queries\n",
		len(fleet.Endpoints), len(fleet.Connections), len(fleet.Queries))
	fmt.Printf("cron_schedule=%q default_timeout=%s max_concurrent_http=%d max_concurrent_db=%d\n",
		fleet.CronSchedule, fleet.DefaultTimeout, fleet.MaxConcurrentHTTP, fleet.MaxConcurrentDB)
}
