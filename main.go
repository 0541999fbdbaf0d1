package main

import (
	"github.com/merchflow/harvester/cmd"
	"github.com/merchflow/harvester/internal/build"
)

func main() {
	cmd.Execute()
}

var version = "0.0.0"

func init() {
	build.Version = version
}
