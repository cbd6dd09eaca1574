package main

import "github.com/yuanxie/sed-dl/cmd"

func main() {
	cmd.Execute()
}
