/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/mategroup/sso/cmd"

func main() {
	cmd.Execute()
}
