// Package main provides the entry point for the sayln CLI.
package main

import (
	"os"

	"github.com/guoyu-zhang/say-like-a-native/cmd/sayln/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
