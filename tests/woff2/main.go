//go:build gofuzz
// +build gofuzz

package fuzz

import "github.com/tdewolff/woff2"

// Fuzz is a fuzz test.
func Fuzz(data []byte) int {
	if _, err := woff2.Convert(data); err != nil {
		return 0
	}
	return 1
}
