package main

import (
	"os"

	"pagewright/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
