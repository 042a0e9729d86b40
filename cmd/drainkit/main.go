// Command drainkit runs a node that accepts cluster events over HTTP,
// broadcasts them to local consumers and, with a NATS or Redis backend, to
// the other nodes. On SIGINT or SIGTERM it stops accepting work, drains
// buffered events and closes its connections before exiting.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
