package config_test

import (
	"fmt"

	"github.com/bureau14/qdbbatch/pkg/config"
)

func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("capacity: %d\n", cfg.Writer.Capacity)
	fmt.Printf("compression: %s\n", cfg.Writer.Compression.Algorithm)
	fmt.Printf("mode: %s\n", cfg.Writer.Mode)
	fmt.Printf("flush: %s\n", cfg.Engine.FlushInterval)

	// Output:
	// capacity: 1024
	// compression: lz4
	// mode: transactional
	// flush: 5s
}

func ExampleConfig_Validate() {
	cfg := config.Default()
	cfg.Writer.Mode = "eventual"

	fmt.Println(cfg.Validate())

	// Output:
	// config: unknown push mode "eventual"
}
