// triage classifies security evidence (files, text, network activity,
// transactions, media) as safe, suspicious or malicious.
//
// Usage:
//
//	triage serve    [--config triage.yaml]
//	triage classify -f inputs.json
//	triage monitor  [--interval 5s] [--count N]
//	triage bench    [-n 1000]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
