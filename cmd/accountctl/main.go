// accountctl administers the account database used by the courier server.
// Accounts are created out-of-band; the wire protocol has no account
// creation command.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"courier/internal/accounts"
	"courier/internal/dao"
)

func main() {
	dataDir := flag.String("db", "/var/lib/courier", "Path to data directory")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	accountDAO, err := dao.NewSQLiteDAO(*dataDir)
	if err != nil {
		log.Fatal("Failed to open account repository:", err)
	}
	defer func() {
		if err := accountDAO.Close(); err != nil {
			log.Printf("Error closing account repository: %v", err)
		}
	}()

	manager, err := accounts.NewManager(accountDAO)
	if err != nil {
		log.Fatal("Failed to initialize account manager:", err)
	}

	switch args[0] {
	case "create":
		if len(args) != 3 {
			usage()
		}
		name, secret := args[1], args[2]
		created, err := manager.CreateAccount(name, secret)
		if err != nil {
			log.Fatal("Failed to create account:", err)
		}
		if !created {
			fmt.Fprintf(os.Stderr, "account %q already exists\n", name)
			os.Exit(1)
		}
		fmt.Printf("account %q created\n", name)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: accountctl [-db dir] create <name> <secret>")
	os.Exit(2)
}
