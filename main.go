package main

import "github.com/duffpl/go-dump2csv/cmd"

func main() {
	cmd.Execute()
}
