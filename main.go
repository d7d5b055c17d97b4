package main

import "github.com/yamdb/apiserver/cmd"

func main() {
	cmd.Execute()
}
