// Package main is the entry point for the splice-check command.
package main

import (
	"os"

	"github.com/loki-oidc/loki-splice/cmd/splice-check/app"
	"github.com/loki-oidc/loki-splice/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
