// Package main is the detect command: it runs a detector over a frame source
// and shows the annotated stream until the source ends or the user stops it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "detect:", err)
		os.Exit(1)
	}
}
