/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command reportqueued runs the report request admission service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
