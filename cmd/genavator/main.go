// Package main is the single-binary entrypoint for Genavator.
package main

import "github.com/vijayaragavanr18/Vervathon25/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
