package main

import "github.com/fakeyudi/fuzzherd/cmd"

func main() {
	cmd.Execute()
}
