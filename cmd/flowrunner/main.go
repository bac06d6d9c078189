// Command flowrunner replays recorded browser test flows.
package main

import "github.com/b2ctest/flowrunner/pkg/cli"

func main() {
	cli.Execute()
}
