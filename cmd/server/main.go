// The server command runs the voice chat server: it loads configuration,
// opens the gorm-backed providers, and hosts the session engine until the
// process receives an interrupt.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ermau/gablarski/internal/core"
	"github.com/ermau/gablarski/internal/core/debug"
	"github.com/ermau/gablarski/internal/provider/gormstore"
	"github.com/ermau/gablarski/internal/server"
)

var configFlag = flag.String("config", "./", "Path to the directory containing the server config file")

func main() {
	flag.Parse()

	fmt.Println("Gablarski voice chat server\n" +
		"===========================")

	config := core.LoadConfig(*configFlag)
	fmt.Println("using configuration file:", *configFlag)

	logger, err := core.NewLogger(config)
	if err != nil {
		fmt.Println("error initializing logger:", err)
		os.Exit(1)
	}

	if config.Debugging.PprofEnabled {
		debug.StartUtilities(logger, config.Debugging.PprofPort)
	}

	store, err := gormstore.Open(config)
	if err != nil {
		logger.Errorf("error opening data store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := server.New(config, logger, store.Users(), store.Channels(), store.Permissions())
	srv.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	logger.Info("shutting down")
	srv.Stop()
}
