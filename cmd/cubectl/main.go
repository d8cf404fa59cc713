package main

import (
	"github.com/arx-os/datakernel-cube/cmd/cubectl/commands"
)

func main() {
	commands.Execute()
}
