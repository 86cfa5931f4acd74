// Command agentloop runs LLM driven agents from a configuration file.
package main

import (
	"os"
)

// version is set via ldflags: -X main.version=v1.0.0
var version = "dev"

func main() {
	if err := newRootCmd(version).Execute(); err != nil {
		os.Exit(1)
	}
}
