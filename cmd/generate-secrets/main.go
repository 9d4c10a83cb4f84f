package main

import (
	"fmt"
	"log"

	"github.com/tourhub/booking-backend/internal/utils"
)

func main() {
	jwtSecret, checksumKey, err := utils.GenerateServiceSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file or secret store:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Printf("PAYMENT_CHECKSUM_KEY=%s\n", checksumKey)
	fmt.Println()
	fmt.Println("PAYMENT_CHECKSUM_KEY must match the key configured at the payment provider.")
}
