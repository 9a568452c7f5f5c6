package main

import "github.com/keyvaldb/keyval/cmd"

func main() {
	cmd.Execute()
}
