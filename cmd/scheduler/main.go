// Command scheduler runs a single batch scheduling pass over JSON input files
// and prints the assignment report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"driver-scheduler/internal/app"
	"driver-scheduler/internal/config"
	"driver-scheduler/internal/database"
	"driver-scheduler/internal/scheduling"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("scheduler", flag.ContinueOnError)
	driversPath := fs.String("drivers", "drivers.json", "drivers JSON file")
	ridesPath := fs.String("rides", "rides.json", "rides JSON file")
	availabilityPath := fs.String("availability", "availability.json", "driver availability JSON file")
	outPath := fs.String("out", "", "write the full result as JSON to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Could not read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	in, err := database.LoadInput(*driversPath, *ridesPath, *availabilityPath)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Printf("[ERROR] Close: %v", err)
		}
	}()

	result, err := application.Run(ctx, &scheduling.ScheduleRequest{
		Drivers:      in.Drivers,
		Rides:        in.Rides,
		Availability: in.Availability,
	})
	if err != nil {
		return err
	}

	if err := writeReport(stdout, result); err != nil {
		return err
	}

	if *outPath != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", *outPath, err)
		}
		log.Printf("Wrote result to %s", *outPath)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("interrupted: partial result printed")
	}
	return nil
}
