// Command loreweaved runs the loreweave daemon using the default
// configuration search path.
package main

import (
	"context"
	"log"

	"loreweave/internal/config"
	"loreweave/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("loreweaved: %v", err)
	}
}
