package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/woff2"
)

type Convert struct {
	Quiet     bool   `short:"q" desc:"Suppress output except for errors."`
	Force     bool   `short:"f" desc:"Force overwriting existing files."`
	Strict    bool   `short:"s" desc:"Reject fonts that conforming encoders must not produce, eg. with a DSIG table."`
	MaxMemory uint32 `short:"m" name:"max-memory" desc:"Maximum size in bytes of the decoded font, zero uses the default of 30 MiB."`
	Metadata  string `desc:"Output file for the extended metadata XML."`
	Encoding  string `short:"e" desc:"Output encoding, either empty or base64."`
	Output    string `short:"o" desc:"Output font file, by default the input filename with a .ttf or .otf extension."`
	Input     string `index:"0" desc:"Input WOFF2 file."`
}

func (cmd *Convert) Run() error {
	if err := cmd.convert(); err != nil {
		Error.Println(err)
		os.Exit(1)
	}
	return nil
}

func (cmd *Convert) convert() error {
	if cmd.Quiet {
		Warning = log.New(ioutil.Discard, "", 0)
	}
	if cmd.Encoding != "" && cmd.Encoding != "base64" {
		return fmt.Errorf("unsupported encoding: %v", cmd.Encoding)
	}

	b, err := readFile(cmd.Input)
	if err != nil {
		return err
	}

	sfnt, err := woff2.Decode(b, woff2.DecodeOptions{
		MaxMemory: cmd.MaxMemory,
		Strict:    cmd.Strict,
	})
	if err != nil {
		if cmd.Input == "-" {
			return err
		}
		return fmt.Errorf("%v: %v", cmd.Input, err)
	}

	if cmd.Output == "" {
		if cmd.Input == "-" {
			cmd.Output = "-"
		} else {
			ext := ".ttf"
			if string(sfnt[:4]) == "OTTO" {
				ext = ".otf"
			}
			cmd.Output = strings.TrimSuffix(cmd.Input, filepath.Ext(cmd.Input)) + ext
		}
	}
	if err := writeFile(cmd.Output, cmd.Encoding, cmd.Force, sfnt); err != nil {
		return err
	}

	if cmd.Metadata != "" {
		metadata, err := woff2.Metadata(b)
		if err != nil {
			return err
		} else if metadata == nil {
			Warning.Println("font has no extended metadata")
		} else if err := writeFile(cmd.Metadata, "", cmd.Force, metadata); err != nil {
			return err
		}
	}

	if !cmd.Quiet && cmd.Output != "-" {
		ratio := float64(len(sfnt)) / float64(len(b))
		fmt.Printf("%v:  %v => %v (%.1f%%)\n", filepath.Base(cmd.Output), formatBytes(uint64(len(b))), formatBytes(uint64(len(sfnt))), ratio*100.0)
	}
	return nil
}
