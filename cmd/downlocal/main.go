package main

import (
	"os"

	"github.com/downlocal/downlocal/pkg/cmd"
	"github.com/downlocal/downlocal/pkg/log"
)

func main() {
	if err := cmd.GetRootCommand().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
