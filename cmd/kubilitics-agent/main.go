package main

import (
	"os"

	"github.com/kubilitics/kubilitics-agent/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
