package main

import (
	"log"
	"os"

	"github.com/tdewolff/argp"
)

var (
	Error   *log.Logger
	Warning *log.Logger
)

func main() {
	Error = log.New(os.Stderr, "ERROR: ", 0)
	Warning = log.New(os.Stderr, "WARNING: ", 0)

	cmd := argp.New("Convert WOFF2 web fonts to TTF and OTF - Taco de Wolff")
	cmd.AddCmd(&Convert{}, "convert", "Convert WOFF2 to TTF or OTF")
	cmd.AddCmd(&Info{}, "info", "Get WOFF2 file info")
	cmd.Parse()
}
