package main

import (
	"os"

	"github.com/turtacn/Arbor/internal/cli"
	"github.com/turtacn/Arbor/pkg/logger"
)

// Workers are started by re-executing this binary, so main runs once per
// process in the tree.
func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Panic recovered", "panic", r, "pid", os.Getpid())
			os.Exit(1)
		}
	}()

	cli.Execute()
}

// Personal.AI order the ending
