package main

import (
	"os"

	"github.com/AmberYZ/investing-agent/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
