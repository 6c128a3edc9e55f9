// Command demoserver starts a stand-in staging site for trying stagecheck end to end.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/stagecheck/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   stagecheck demo staging site")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Pages answer with fixed statuses that can be switched")
	fmt.Println("from the control panel:")
	fmt.Println("  - 200 pages, a 301 redirect, 404s and a 500")
	fmt.Printf("  - a slow page that waits %s\n", cfg.SlowDelay)
	fmt.Println("  - /sitemap.xml index with two child sitemaps, robots.txt")
	fmt.Println()
	fmt.Printf("Try: stagecheck generate http://localhost:%d localhost:%d\n", cfg.Port, cfg.Port)
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
