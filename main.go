package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/report"
	"go.uber.org/fx"
)

func main() {
	input := flag.String("input", "", "path to the input file")
	format := flag.String("format", string(entities.FormatES),
		fmt.Sprintf("input format: %q or %q", entities.FormatES, entities.FormatMpegTS))
	flag.Parse()

	var r *report.Reporter
	app := fx.New(
		fx.NopLogger,
		report.Dependencies(*input, entities.InputFormat(*format)),
		fx.Populate(&r),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err.Error())
	}

	if err := r.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
