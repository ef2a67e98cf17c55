package main

import (
	"os"

	"github.com/Priya8975/commerce-webhook-pipeline/cmd/pipelinectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
