package main

import (
	"github.com/fennwick/cull/internal/cli"
	"github.com/fennwick/cull/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
