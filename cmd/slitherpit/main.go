package main

import (
	"math/rand"
	"time"

	"github.com/slitherpit/engine/cmd/slitherpit/commands"
)

func main() {
	rand.Seed(time.Now().UnixNano())
	commands.Execute()
}
