package main

import "odds-crawler/internal/cli"

func main() {
	cli.Execute()
}
