// trafficinspect - capture and stream application HTTP traffic records.
package main

import (
	"fmt"
	"os"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/cli"
)

// Build-time variables set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	cli.SetBuildInfo(Version, Commit)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
