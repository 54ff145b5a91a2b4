package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jacentio/opendelivery/domain"
)

// CreateCommand returns the create command.
func CreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create a domain and wait until it is visible",
		ArgsUsage: "DOMAIN",
		Action:    domainCreate,
	}
}

// DestroyCommand returns the destroy command.
func DestroyCommand() *cli.Command {
	return &cli.Command{
		Name:      "destroy",
		Usage:     "Delete a domain and wait until it is gone",
		ArgsUsage: "DOMAIN",
		Action:    domainDestroy,
	}
}

// ExistsCommand returns the exists command.
func ExistsCommand() *cli.Command {
	return &cli.Command{
		Name:      "exists",
		Usage:     "Report whether a domain exists",
		ArgsUsage: "DOMAIN",
		Action:    domainExists,
	}
}

// ItemsCommand returns the items command.
func ItemsCommand() *cli.Command {
	return &cli.Command{
		Name:      "items",
		Usage:     "List the items of a domain",
		ArgsUsage: "DOMAIN",
		Action:    domainItems,
	}
}

// LoadCommand returns the load command.
func LoadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Load a JSON document of item -> key -> value into a domain",
		ArgsUsage: "DOMAIN FILE",
		Action:    domainLoad,
	}
}

func domainCreate(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN")
	if err != nil {
		return err
	}
	if err := rt.Store.Create(c.Context, a[0]); err != nil {
		return err
	}
	rt.Logger.Info("domain created", "domain", a[0])
	return nil
}

func domainDestroy(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN")
	if err != nil {
		return err
	}
	if err := rt.Store.Destroy(c.Context, a[0]); err != nil {
		return err
	}
	rt.Logger.Info("domain destroyed", "domain", a[0])
	return nil
}

func domainExists(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN")
	if err != nil {
		return err
	}
	exists, err := rt.Store.Exists(c.Context, a[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, exists)
	return nil
}

func domainItems(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN")
	if err != nil {
		return err
	}
	items, err := rt.Store.Items(c.Context, a[0])
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Fprintln(c.App.Writer, item)
	}
	return nil
}

func domainLoad(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "FILE")
	if err != nil {
		return err
	}

	err = rt.Store.LoadDomainFile(c.Context, a[0], a[1])
	var loadErr *domain.LoadError
	if errors.As(err, &loadErr) {
		for _, f := range loadErr.Failed {
			rt.Logger.Error("property not loaded", "domain", a[0], "pair", f.String(), "error", f.Err)
		}
	}
	if err != nil {
		return err
	}
	rt.Logger.Info("domain loaded", "domain", a[0], "file", a[1])
	return nil
}
