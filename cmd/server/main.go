package main

import (
	"fmt"
	"os"

	"github.com/Tyrowin/hellopool/internal/server"
)

func main() {
	config := server.NewConfigFromEnv()
	logger := server.NewLogger(*config, os.Stderr)

	srv, err := server.NewServer(*config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	if err := srv.Listen(); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}

	fmt.Printf("http://%s/ started (%d workers)\n", srv.Addr(), config.PoolSize)

	// No signal handling: killing the process drops queued and in-flight
	// connections.
	logger.Fatal(srv.Serve())
}
