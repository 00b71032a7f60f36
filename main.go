package main

import (
	"log"

	"github.com/agrimarket/alloc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("alloc: %v", err)
	}
}
