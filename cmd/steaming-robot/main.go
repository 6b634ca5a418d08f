package main

import (
	"os"

	"steaming-robot/internal/cli"
)

// main 是熨烫机器人决策服务的入口
func main() {
	os.Exit(cli.Execute())
}
