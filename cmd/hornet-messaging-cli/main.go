// Command hornet-messaging-cli is a thin developer harness exercising
// the Service facade end-to-end, grounded on germtb-mlsgit's
// internal/cli Cobra layout. It is not the product's front-end (that is
// out of scope); it exists for manual and integration testing of the
// messaging core.
package main

import (
	"fmt"
	"os"

	"github.com/HORNET-Storage/hornet-messaging/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
