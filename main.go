package main

import "drivel/cmd"

func main() {
	cmd.Execute()
}
