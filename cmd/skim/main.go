package main

import (
	"os"

	"skim.fyi/skim/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
