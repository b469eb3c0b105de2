package main

import (
	"log"

	"github.com/cordum/mediaflow/core/controlplane/workflowengine"
	"github.com/cordum/mediaflow/core/infra/buildinfo"
	"github.com/cordum/mediaflow/core/infra/config"
)

func main() {
	log.Println("mediaflow workflow engine starting...")
	buildinfo.Log("mediaflow-engine")
	cfg := config.Load()
	if err := workflowengine.Run(cfg); err != nil {
		log.Fatalf("workflow engine error: %v", err)
	}
}
