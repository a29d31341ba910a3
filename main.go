package main

import "github.com/arya-analytics/gauge/cmd"

func main() { cmd.Execute() }
