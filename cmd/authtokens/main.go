// Command authtokens runs the token engine demo server and manages its
// Postgres schema.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
