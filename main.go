package main

import (
	"fmt"

	"github.com/webitel/cluster-grpclb/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
