package main

import (
	"log"

	"tracklnd/app/config"
	"tracklnd/app/database"
)

func main() {
	log.Println("Running database migrations...")

	config.Load()
	db := config.GetDB()
	if db == nil {
		log.Fatal("Failed to get database instance")
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Migration failed:", err)
	}

	log.Println("Migrations completed successfully!")
}
