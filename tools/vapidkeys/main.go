package main

import (
	"fmt"
	"log"

	"github.com/resq-app/resq-backend/internal/messaging"
)

func main() {
	privateKey, publicKey, err := messaging.GenerateVAPIDKeys()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
}
