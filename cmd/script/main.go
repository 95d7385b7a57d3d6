package main

import (
	"fmt"
	"os"
)

// 命令行工具：单次分析与导出可视化数据

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
