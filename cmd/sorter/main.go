package main

import (
	"os"
)

// @title Parcel Sorter API
// @version 1.0
// @description Admin surface of the wheel-diverter sorting engine: debug sorts, chute changes, parcel tracking, diverter health and topology.
// @contact.name Line Controls
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
