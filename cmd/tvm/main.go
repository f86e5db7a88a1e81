package main

import "github.com/adobe/aio-tvm/cmd"

func main() {
	cmd.Execute()
}
