package main

import (
	"context"
	"log"

	"github.com/dalemusser/schoolctx/app"
	"github.com/dalemusser/schoolctx/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
