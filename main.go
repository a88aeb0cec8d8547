package main

import (
	"github.com/kestrelsec/agentgate/cmd"
)

func main() {
	cmd.Execute()
}
