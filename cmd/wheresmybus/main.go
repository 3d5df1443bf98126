package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:        "wheresmybus",
		Usage:       "schedule and realtime reconciliation for a GTFS network",
		Description: "Answers upcoming-departure questions for routes and stops, blending the static timetable with GTFS-realtime.",
		Commands: []*cli.Command{
			serveCommand(),
			routeCommand(),
			stopCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}
