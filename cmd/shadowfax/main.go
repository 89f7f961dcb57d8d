package main

import (
	"errors"
	"log"
	"os"

	"shadowfax/internal/app"
	"shadowfax/internal/config"
)

func main() {
	application, err := app.New(config.DefaultPath)
	if errors.Is(err, config.ErrCreated) {
		log.Printf("%s: %v", config.DefaultPath, err)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}

	if err := application.Run(); err != nil {
		log.Fatal(err)
	}
}
