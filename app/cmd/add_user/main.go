package main

import (
	"flag"
	"fmt"

	"tracklnd/app/config"
	"tracklnd/app/database"
	"tracklnd/app/models"
)

func main() {
	email := flag.String("email", "", "email address for the new user")
	password := flag.String("password", "", "password for the new user")
	name := flag.String("name", "", "display name for the new user")
	admin := flag.Bool("admin", false, "grant the admin role")
	flag.Parse()

	if *email == "" || *password == "" || *name == "" {
		fmt.Println("Usage: add_user -email <email> -password <password> -name <name> [-admin]")
		return
	}

	// Initialize database connection
	config.Load()
	db := config.GetDB()
	if db == nil {
		fmt.Println("Failed to connect to database")
		return
	}
	defer db.Close()

	role := models.RoleUser
	if *admin {
		role = models.RoleAdmin
	}

	user, err := database.CreateUser(db, *email, *password, *name, role)
	if err != nil {
		fmt.Printf("Error creating user: %v\n", err)
		return
	}

	fmt.Printf("User created successfully: %s (%s, role=%s)\n", user.Name, user.Email, user.Role)
}
