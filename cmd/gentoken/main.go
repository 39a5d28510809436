// gentoken mints a development JWT signed with JWT_SECRET.
// Usage: go run ./cmd/gentoken -role operations [-business <uuid>] [-ttl 8h]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/config"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/middleware"

	"github.com/google/uuid"
)

func main() {
	role := flag.String("role", middleware.RoleOperations, "admin | operations | order_service | viewer")
	user := flag.String("user", uuid.NewString(), "user id placed in the token")
	business := flag.String("business", "", "restrict the token to one business")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	switch *role {
	case middleware.RoleAdmin, middleware.RoleOperations, middleware.RoleOrderService, middleware.RoleViewer:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is empty")
		os.Exit(1)
	}

	token, err := middleware.NewToken(cfg.JWTSecret, *user, *role, *business, *ttl)
	if err != nil {
		panic(err)
	}
	fmt.Println(token)
}
