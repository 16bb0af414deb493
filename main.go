package main

import "github.com/copwatch-uk/copwatch/cmd"

func main() {
	cmd.Execute()
}
