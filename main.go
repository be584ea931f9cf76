package main

import (
	"os"

	"github.com/patchprove/patchprove/commands"
	"github.com/patchprove/patchprove/log"
)

func main() {
	code := commands.Execute()
	log.Close()
	os.Exit(code)
}
