package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gocomposite/app"
	"gocomposite/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("COMPOSITE_CONFIG"), "path to YAML config file")
	flag.Parse()

	engine := server.NewEngine(app.New(*configPath), server.WithVersion(version))
	if err := engine.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "product-composite: %v\n", err)
		os.Exit(1)
	}
}
