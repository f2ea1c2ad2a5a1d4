package main

import "github.com/shin315/fetchopt/cmd"

func main() {
	cmd.Execute()
}
