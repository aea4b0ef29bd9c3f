// Package main is sfcctl, the command line client of the VNF orchestrator.
package main

import "github.com/sri0013/vnf-project/internal/cli"

func main() {
	cli.Execute()
}
