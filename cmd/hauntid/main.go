package main

import (
	"github.com/haunti-network/haunti/cmd/hauntid/cmd"
)

func main() {
	cmd.Execute()
}
