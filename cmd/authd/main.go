package main

import (
	"log"

	"authd/cmd/internal/app"
)

func main() {
	if _, err := app.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
