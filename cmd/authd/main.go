package main

import (
	"context"
	"flag"
	"log"

	"github.com/plateforge/auth-service/internal/app/bootstrap"
)

func main() {
	mode := flag.String("mode", "api", "run mode: api or worker")
	configPath := flag.String("config", "configs/default.yaml", "path to config file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("bootstrap runtime: %v", err)
	}

	switch *mode {
	case "api":
		err = runtime.RunAPI(ctx)
	case "worker":
		err = runtime.RunWorker(ctx)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatalf("run %s: %v", *mode, err)
	}
}
