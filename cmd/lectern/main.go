package main

import (
	"fmt"
	"os"
)

// Version is the version of the application, set at build time
var Version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, defaultStyles().err.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
