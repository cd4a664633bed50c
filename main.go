package main

import (
	"os"

	"github.com/StormyCloudInc/selector-vanitygen/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
