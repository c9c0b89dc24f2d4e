package main

import "github.com/andresmejia3/framecheck/cmd"

func main() {
	cmd.Execute()
}
