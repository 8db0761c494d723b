package main

import "os"

func main() {

	commandInit()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}

}
