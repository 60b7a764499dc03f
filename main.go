package main

import "github.com/ardiwinata/qms-compliance/cmd"

func main() {
	cmd.Execute()
}
