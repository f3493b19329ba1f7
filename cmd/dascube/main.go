// Command dascube builds log-power spectrogram cubes from a day of DAS
// strain-rate recordings.
package main

import (
	"os"

	"github.com/RyanBlaney/strain-cube/logging"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		logging.Error(err, "dascube failed")
		os.Exit(1)
	}
}
