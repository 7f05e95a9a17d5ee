package report

import (
	"log"

	"github.com/kelseyhightower/envconfig"
	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/mapper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Dependencies wires up everything the reporter needs to run. The input
// file and its format come from the command line rather than the
// environment, so they are passed in here.
func Dependencies(input string, format entities.InputFormat) fx.Option {
	var c entities.Config
	err := envconfig.Process("h264au", &c)
	if err != nil {
		log.Fatal(err.Error())
	}
	c.Input = input
	c.InputFormat = format

	return fx.Options(
		fx.Provide(
			NewReporter,
			mapper.NewMapper,
		),
		fx.Provide(func() *zap.SugaredLogger {
			logger, _ := zap.NewProduction()
			return logger.Sugar()
		}),
		fx.Provide(func() *entities.Config {
			return &c
		}),
	)
}
