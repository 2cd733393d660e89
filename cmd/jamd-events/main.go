package main

import (
	_ "time/tzdata" // embed the IANA database for hosts without one

	"github.com/galkatzh/JAMD-events/internal/cli"
)

func main() {
	cli.Execute()
}
