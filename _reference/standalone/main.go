// Example: standalone Bastion usage without Forge.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/catalog"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/store/memory"
	"github.com/xraph/bastion/user"
)

func main() {
	ctx := context.Background()
	s := memory.New()

	eng, err := bastion.NewEngine(bastion.WithStore(s))
	if err != nil {
		log.Fatal(err)
	}
	// Start seeds the default module catalog.
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}

	// Provision a company with the default role templates.
	acme, err := eng.ProvisionCompany(ctx, "Acme", catalog.Roles())
	if err != nil {
		log.Fatal(err)
	}
	hrManager, err := s.GetRoleByName(ctx, acme.ID, "HR Manager")
	if err != nil {
		log.Fatal(err)
	}

	hash, err := credential.NewAuto().Hash("correct horse")
	if err != nil {
		log.Fatal(err)
	}
	alice := &user.User{
		ID: id.NewUserID(), CompanyID: acme.ID,
		Email: "alice@acme.test", Name: "Alice", PasswordHash: hash, IsActive: true,
	}
	if err := s.CreateUser(ctx, alice); err != nil {
		log.Fatal(err)
	}
	if err := eng.AssignRole(ctx, acme.ID, alice.ID, hrManager.ID); err != nil {
		log.Fatal(err)
	}

	// Legacy and modern HR spellings satisfy each other.
	ok, err := eng.UserHasPermissions(ctx, acme.ID, alice.ID, []string{"hr-employees:read"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("hr-employees:read allowed: %v\n", ok)

	// Guard a call: any failure is a denial.
	p := bastion.Principal{CompanyID: acme.ID, UserID: alice.ID}
	fmt.Printf("tasks:delete: %v\n", eng.Authorize(ctx, p, "tasks:delete"))

	nav, err := eng.ModulesForUser(ctx, acme.ID, alice.ID)
	if err != nil {
		log.Fatal(err)
	}
	for _, n := range nav {
		fmt.Printf("%s (%d children)\n", n.Key, len(n.Children))
	}
}
