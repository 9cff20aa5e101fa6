package main

import (
	"github.com/BioHazard786/callrelay/cmd"
	"github.com/BioHazard786/callrelay/internal/logging"
)

func main() {
	logging.Init("")
	cmd.Execute()
}
