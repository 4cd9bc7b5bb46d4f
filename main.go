package main

import (
	"workshop-enrollment/cmd"

	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd.Start()
}
