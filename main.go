package main

import "github.com/tidywork/finance-engine/cmd"

func main() {
	cmd.Execute()
}
