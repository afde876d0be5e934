package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// output writes v as JSON, or calls human when --human is set.
func output(v interface{}, human func()) error {
	if humanOutput {
		human()
		return nil
	}
	return outputJSON(v)
}

// reportError outputs an error in the appropriate format (human or JSON).
func reportError(err error) {
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return
	}
	outputJSON(ErrorResponse{Error: err.Error(), Code: exitCode(err)})
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
