package main

import "github.com/encodeous/ospf6rde/cmd"

func main() {
	cmd.Execute()
}
