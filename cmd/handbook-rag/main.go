// Package main is the entry point for the handbook RAG service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/handbook-rag/cmd/handbook-rag/app"
)

func main() {
	app.NewApp().Run()
}
