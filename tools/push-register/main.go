package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/pushclient"
)

var (
	baseURL  = flag.String("url", "http://localhost:8080", "API base URL")
	token    = flag.String("token", "", "bearer token - if not provided, value from env variable RESQ_TOKEN is used")
	endpoint = flag.String("endpoint", "", "push endpoint to register")
	toggle   = flag.String("toggle", "", "on or off: toggle delivery of all subscriptions instead of subscribing")
)

func main() {
	flag.Parse()

	if *token == "" {
		*token = os.Getenv("RESQ_TOKEN")
	}

	logger, err := logging.NewLogger("debug")
	if err != nil {
		log.Fatalln(err)
	}
	ctx := logging.WithLogger(context.Background(), logger)

	client := pushclient.New(ctx, pushclient.Config{
		BaseURL:      *baseURL,
		Token:        *token,
		Capabilities: pushclient.Capabilities{ServiceWorker: true, PushManager: true, Notification: true},
		Permissions:  pushclient.StaticPermissions(pushclient.PermissionGranted),
		Manager:      &pushclient.LocalManager{Endpoint: *endpoint},
	})

	var result pushclient.Result

	switch *toggle {
	case "":
		if *endpoint == "" {
			flag.PrintDefaults()
			os.Exit(0)
		}
		result = client.Subscribe(ctx)
	case "on", "off":
		result = client.Toggle(ctx, *toggle == "on")
	default:
		log.Fatalf("toggle must be on or off, got %q", *toggle)
	}

	out, _ := json.Marshal(result)
	fmt.Println(string(out))

	if !result.Success {
		os.Exit(1)
	}
}
