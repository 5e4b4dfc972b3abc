// Command example is a demo function handler exercising the full driver
// against a real or locally simulated Runtime API. It is never part of the
// code shipped into a Lambda execution environment — that's lambdacore
// itself, embedded by the user's own function binary — this command exists
// to exercise lambdacore.NewDriver end to end during local development.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mackee/lambdacore"
	"github.com/mackee/lambdacore/lambdacontext"
	"github.com/mackee/lambdacore/lambdalog"
)

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Message string `json:"message"`
}

func main() {
	// .env is a local-development convenience only; a deployed function
	// never carries one, and the Runtime API's own environment variables
	// always win since godotenv.Load does not overwrite existing values.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "example: loading .env: %v\n", err)
	}

	cfg, err := lambdacore.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "example: %v\n", err)
		os.Exit(1)
	}

	log, err := lambdalog.NewZapLogger(cfg.LogLevelParsed())
	if err != nil {
		fmt.Fprintf(os.Stderr, "example: building logger: %v\n", err)
		os.Exit(1)
	}

	driver := lambdacore.NewDriver(cfg, newHandler, log)
	if err := driver.Run(context.Background()); err != nil {
		log.Log(lambdalog.LevelCritical, "runtime exited with error", lambdalog.F("error", err))
		os.Exit(1)
	}
}

func newHandler(ctx context.Context) (lambdacore.Handler, error) {
	return lambdacore.NewTypedHandler(handleGreet, nil, nil), nil
}

func handleGreet(ctx context.Context, req greetRequest, lc *lambdacontext.LambdaContext) (greetResponse, error) {
	name := req.Name
	if name == "" {
		name = "world"
	}
	lc.Logger.Log(lambdalog.LevelInfo, "handling greeting", lambdalog.F("name", name))
	return greetResponse{Message: "hello, " + name}, nil
}
