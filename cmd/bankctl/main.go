package main

import "github.com/MrEthical07/goSession/cmd/bankctl/cmd"

func main() {
	cmd.Execute()
}
