package main

import "github.com/devopsext/tracecore/cmd"

func main() {
	cmd.Execute()
}
