package main

import "github.com/crystaldolphin/toolstream/cmd"

func main() {
	cmd.Execute()
}
