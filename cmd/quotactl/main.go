// quotactl provisions and inspects quota accounts.
//
//	quotactl -account acme-realty -allocate 500
//	quotactl -account acme-realty -show
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"listinglens/internal/adapter/repo"
	"listinglens/internal/domain"
)

func main() {
	var (
		accountFlag  string
		allocateFlag int
		showFlag     bool
	)

	flag.StringVar(&accountFlag, "account", "", "quota account to manage")
	flag.IntVar(&allocateFlag, "allocate", -1, "token allocation for the current period (>= 0)")
	flag.BoolVar(&showFlag, "show", false, "print the account without modifying it")
	flag.Parse()

	account := strings.TrimSpace(accountFlag)
	if account == "" {
		exitWithError(errors.New("-account is required"))
	}
	if !showFlag && allocateFlag < 0 {
		exitWithError(errors.New("either -show or -allocate must be provided"))
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	accounts := repo.NewQuotaRepository(pool)

	var acc *domain.QuotaAccount
	if showFlag {
		acc, err = accounts.GetByID(ctx, account)
		if errors.Is(err, domain.ErrAccountNotFound) {
			exitWithError(fmt.Errorf("account %q is not provisioned", account))
		}
	} else {
		acc, err = accounts.Upsert(ctx, account, allocateFlag)
	}
	if err != nil {
		exitWithError(err)
	}

	out, err := json.MarshalIndent(map[string]any{
		"account_id": acc.AccountID,
		"used":       acc.Used,
		"allocated":  acc.Allocated,
		"remaining":  acc.Remaining(),
		"updated_at": acc.UpdatedAt,
	}, "", "  ")
	if err != nil {
		exitWithError(err)
	}
	fmt.Println(string(out))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "quotactl:", err)
	os.Exit(1)
}
