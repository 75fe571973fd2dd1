package main

import (
	"os"

	"paydigest/internal/cli"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
