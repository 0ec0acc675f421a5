package main

import "github.com/glintsearch/glint/cmd"

func main() {
	cmd.Execute()
}
