package main

import (
	"fmt"
	"os"

	"quill/internal/app"
	"quill/internal/logger"
)

func main() {
	debug := os.Getenv("QUILL_DEBUG") != ""
	if err := logger.Init(debug); err != nil {
		fmt.Fprintln(os.Stderr, "quill: logger:", err)
	}
	defer logger.Close()

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if err := app.New(args).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "quill:", err)
		os.Exit(1)
	}
}
