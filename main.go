package main

import "github.com/Yates-Labs/respin/cmd"

func main() {
	cmd.Execute()
}
