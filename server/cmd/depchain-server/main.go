package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildbeaver/depchain/common/util"
	"github.com/buildbeaver/depchain/common/version"
	"github.com/buildbeaver/depchain/server/app"
)

func main() {
	fmt.Printf("depchain server v%s\n", version.VersionToString())
	fmt.Printf("Starting with args: %v\n", util.FilterOSArgs(os.Args, app.LogSafeFlags))

	config, err := app.ConfigFromFlags()
	if err != nil {
		log.Fatalf("Error parsing flags: %s", err)
	}

	server, cleanup, err := app.New(context.Background(), config)
	if err != nil {
		log.Fatalf("Error creating app: %s", err)
	}
	defer cleanup()
	err = server.Start(context.Background())
	if err != nil {
		log.Fatalf("Error starting server: %s", err)
	}

	// Wait for SIGINT or SIGTERM before shutting down server
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()
	err = server.Stop(ctx)
	if err != nil {
		log.Fatal(err.Error())
	}
	log.Print("Server shutdown complete")
}
