package supervisor

import (
	"log"
	"os"
)

// debugEnabled is set once at startup from the DROVER_DEBUG environment
// variable.
var debugEnabled = os.Getenv("DROVER_DEBUG") != ""

// debugLog logs only when debug mode is enabled.
func debugLog(format string, args ...any) {
	if debugEnabled {
		log.Printf(format, args...)
	}
}
