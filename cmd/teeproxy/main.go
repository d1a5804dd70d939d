// Command teeproxy is a forward HTTP proxy that mirrors the traffic it relays
// into a capture log.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("teeproxy failed")
		os.Exit(1)
	}
}
