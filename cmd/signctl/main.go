// signctl sends signing requests to a running ordersignerd.
package main

import (
	"fmt"
	"os"

	"github.com/danmuck/ordersigner/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "signctl: %v\n", err)
		os.Exit(1)
	}
}
