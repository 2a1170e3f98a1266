package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"

	"github.com/tdewolff/prompt"
)

func formatBytes(size uint64) string {
	if size < 10 {
		return fmt.Sprintf("%d B", size)
	}

	units := []string{"B", "kB", "MB", "GB", "TB", "PB", "EB"}
	scale := int(math.Floor((math.Log10(float64(size)) + math.Log10(2.0)) / 3.0))
	value := float64(size) / math.Pow10(scale*3.0)
	format := "%.0f %s"
	if value < 10.0 {
		format = "%.1f %s"
	}
	return fmt.Sprintf(format, value, units[scale])
}

func readFile(filename string) ([]byte, error) {
	var err error
	var r *os.File
	if filename == "-" {
		r = os.Stdin
	} else if r, err = os.Open(filename); err != nil {
		return nil, err
	}
	b, err := ioutil.ReadAll(r)
	if err != nil {
		r.Close()
		return nil, err
	} else if err := r.Close(); err != nil {
		return nil, err
	}
	return b, nil
}

func writeFile(filename, encoding string, force bool, b []byte) error {
	if encoding == "base64" {
		dst := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
		base64.StdEncoding.Encode(dst, b)
		b = dst
	}

	var err error
	var w io.WriteCloser
	if filename == "-" {
		w = os.Stdout
	} else {
		if _, err := os.Stat(filename); err == nil {
			if !force && !prompt.YesNo(fmt.Sprintf("%s already exists, overwrite?", filename), false) {
				return fmt.Errorf("file already exists")
			}
		}
		if w, err = os.Create(filename); err != nil {
			return err
		}
	}

	if _, err := w.Write(b); err != nil {
		w.Close()
		return err
	} else if err := w.Close(); err != nil {
		return err
	}
	return nil
}
