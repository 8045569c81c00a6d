// Command steam-monitor tracks Steam apps and notifies when they post news.
//
// Usage:
//
//	steam-monitor serve                 # HTTP API with auto refresh
//	steam-monitor add 570               # track an app
//	steam-monitor import apps.txt       # track every id found in a file
//	steam-monitor refresh               # refresh all tracked apps once
//	steam-monitor list --json
//
// Configuration comes from --config, STEAM_MONITOR_* environment variables
// and built-in defaults.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
