package main

import (
	"context"
	"log"

	"github.com/pixil98/go-service"

	"gridrun/server/internal/app"
	"gridrun/server/internal/config"
)

func main() {
	a, err := service.NewApp(&config.Config{}, app.BuildWorkers)
	if err != nil {
		log.Fatalf("creating application: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		log.Fatalf("running application: %v", err)
	}

	log.Print("exiting")
}
