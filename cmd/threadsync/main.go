package main

import (
	"fmt"
	"os"

	"github.com/vdavid/threadsync/cmd/threadsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
