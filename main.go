package main

import "github.com/citemetric/scholarcrawl/cmd"

func main() {
	cmd.Execute()
}
