package main

import "github.com/hurou927/tsdb-report/cmd"

func main() {
	cmd.Execute()
}
