package cli

import (
	"context"
	"fmt"
	"strings"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for email and password and signs in. The password bytes are
// wiped before returning.
func (a *App) Login(ctx context.Context) error {
	a.setLocation("/auth/login")
	defer a.setLocation("/")

	email, err := getSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer clear(password)

	identity, err := a.auth.Login(ctx, email, string(password))
	if err != nil {
		a.printf("Login unsuccessful: %s\n", describe(err))
		return nil
	}

	a.mu.Lock()
	a.expired = false
	a.mu.Unlock()

	name := identity.Email
	if identity.DisplayName != "" {
		name = fmt.Sprintf("%s (%s)", identity.DisplayName, identity.Email)
	}
	a.printf("Signed in as %s\n", name)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.uploads.Cancel()
	a.imports.Reset()
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.printf("Signed out.\n")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	me, err := a.auth.WhoAmI(ctx)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(me.FirstName + " " + me.LastName)
	a.printf("%s <%s> (id %s)\n", name, me.Email, me.ID)
	return nil
}
