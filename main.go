package main

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	root := &cobra.Command{
		Use:           "grantscope",
		Short:         "Optimistic board client and reference board service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBoardCommand(), newServeCommand())
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
