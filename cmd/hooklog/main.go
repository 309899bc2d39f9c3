package main

import (
	"os"

	"hooklog/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
