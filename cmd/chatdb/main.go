package main

import "chatdb/internal/cli"

func main() {
	cli.Execute()
}
