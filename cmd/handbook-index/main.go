// Package main is the entry point for the handbook indexing tool.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/handbook-rag/cmd/handbook-index/app"
)

func main() {
	app.NewApp().Run()
}
