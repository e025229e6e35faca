package main

import (
	"context"
	"os"

	"github.com/markberger/kinesisctl/internal/cli"
	log "github.com/sirupsen/logrus"
)

func main() {
	err := cli.Execute(context.Background(), cli.BackendClients{}, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		log.WithError(err).Error("kinesisctl failed")
		os.Exit(1)
	}
}
