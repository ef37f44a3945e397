package main

import (
	"os"

	"horse.fit/markwatch/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
