package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"courier/internal/core"
)

func main() {
	server := flag.String("server", envOr("COURIER_SERVER", "http://localhost:8080"), "courier server URL")
	token := flag.String("token", envOr("COURIER_TOKEN", ""), "API bearer token")
	password := flag.String("password", "", "protect the transfer with a password (paid plans)")
	expireDays := flag.Int("expires", 0, "expire after N days (0 uses the plan default)")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "Error: no API token, set COURIER_TOKEN or pass -token")
		os.Exit(1)
	}

	files, err := core.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := core.SendOptions{Password: *password}
	if *expireDays > 0 {
		t := time.Now().AddDate(0, 0, *expireDays)
		opts.ExpiresAt = &t
	}

	client := core.NewClient(*server, *token)
	uploader := core.NewUploader(client, os.Stdout)

	fmt.Printf("Uploading %d file(s) to %s\n", len(files), *server)

	result, err := uploader.Send(context.Background(), files, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ Transfer created\n")
	fmt.Printf("Share link: %s\n", result.ShareURL)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
