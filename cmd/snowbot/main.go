// Package main - snowbot CLI
// 자동매매 코어 진입점
//
// 사용법:
//
//	go run ./cmd/snowbot cycle run
//	go run ./cmd/snowbot evaluate --date 20261015
//	go run ./cmd/snowbot serve
package main

import (
	"os"

	"github.com/wonny/snowbot/cmd/snowbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
