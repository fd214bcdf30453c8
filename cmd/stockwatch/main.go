package main

import (
	"os"

	"github.com/NasaVasa/stockwatch/cmd/stockwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
