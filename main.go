package main

import "github.com/truewear/go-registrar/cmd"

func main() {
	cmd.Execute()
}
