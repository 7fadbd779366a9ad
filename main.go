package main

import "github.com/nextlevelbuilder/musebot/cmd"

func main() {
	cmd.Execute()
}
