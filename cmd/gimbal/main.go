// Gimbal drives a three-axis motorized gimbal rig from live orientation data.
package main

import (
	"log"
)

func main() {
	if err := Execute(); err != nil {
		log.Fatal(err)
	}
}
