// Package main 是 phctl 命令行客户端的入口点
package main

import "powerhouse-manager/internal/client/cmd"

func main() {
	cmd.Execute()
}
