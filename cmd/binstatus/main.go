// Command binstatus records waste bin fill-level reports. It runs as an AWS
// Lambda function by default and can also serve HTTP locally.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("binstatus failed")
		os.Exit(1)
	}
}
