package main

import (
	"os"

	"horse.fit/pagetranslate/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
