package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jacentio/opendelivery/cipher"
)

// DestroyItemCommand returns the destroy-item command.
func DestroyItemCommand() *cli.Command {
	return &cli.Command{
		Name:      "destroy-item",
		Usage:     "Delete an item and all its properties",
		ArgsUsage: "DOMAIN ITEM",
		Action:    itemDestroy,
	}
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a property value",
		ArgsUsage: "DOMAIN ITEM KEY",
		Action:    propertyGet,
	}
}

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Replace a property value",
		ArgsUsage: "DOMAIN ITEM KEY VALUE",
		Action:    propertySet,
	}
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Remove a property",
		ArgsUsage: "DOMAIN ITEM KEY",
		Action:    propertyDelete,
	}
}

// GetEncryptedCommand returns the get-encrypted command.
func GetEncryptedCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-encrypted",
		Usage:     "Print a decrypted property value (requires --private-key)",
		ArgsUsage: "DOMAIN ITEM KEY",
		Action:    propertyGetEncrypted,
	}
}

// SetEncryptedCommand returns the set-encrypted command.
func SetEncryptedCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-encrypted",
		Usage:     "Encrypt and store a property value (requires --certificate or --private-key)",
		ArgsUsage: "DOMAIN ITEM KEY VALUE",
		Action:    propertySetEncrypted,
	}
}

// ItemJSONCommand returns the item-json command.
func ItemJSONCommand() *cli.Command {
	return &cli.Command{
		Name:      "item-json",
		Usage:     "Print all properties of an item as canonical JSON",
		ArgsUsage: "DOMAIN ITEM",
		Action:    itemJSON,
	}
}

func itemDestroy(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "ITEM")
	if err != nil {
		return err
	}
	return rt.Store.DestroyItem(c.Context, a[0], a[1])
}

func propertyGet(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "ITEM", "KEY")
	if err != nil {
		return err
	}
	value, ok, err := rt.Store.GetProperty(c.Context, a[0], a[1], a[2])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, a[0], a[1], a[2])
	}
	fmt.Fprintln(c.App.Writer, value)
	return nil
}

func propertySet(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "ITEM", "KEY", "VALUE")
	if err != nil {
		return err
	}
	return rt.Store.SetProperty(c.Context, a[0], a[1], a[2], a[3])
}

func propertyDelete(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "ITEM", "KEY")
	if err != nil {
		return err
	}
	return rt.Store.DeleteProperty(c.Context, a[0], a[1], a[2])
}

func propertyGetEncrypted(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "ITEM", "KEY")
	if err != nil {
		return err
	}
	if !rt.Store.Keys().CanDecrypt() {
		return fmt.Errorf("%s requires --private-key: %w", c.Command.Name, cipher.ErrNoPrivateKey)
	}
	value, ok, err := rt.Store.GetEncryptedProperty(c.Context, a[0], a[1], a[2])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, a[0], a[1], a[2])
	}
	fmt.Fprintln(c.App.Writer, value)
	return nil
}

func propertySetEncrypted(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "ITEM", "KEY", "VALUE")
	if err != nil {
		return err
	}
	if !rt.Store.Keys().CanEncrypt() {
		return fmt.Errorf("%s requires --certificate or --private-key: %w", c.Command.Name, cipher.ErrNoPublicKey)
	}
	return rt.Store.SetEncryptedProperty(c.Context, a[0], a[1], a[2], a[3])
}

func itemJSON(c *cli.Context) error {
	rt, err := currentRuntime(c)
	if err != nil {
		return err
	}
	a, err := args(c, "DOMAIN", "ITEM")
	if err != nil {
		return err
	}
	doc, ok, err := rt.Store.GetItemAttributesJSON(c.Context, a[0], a[1])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, a[0], a[1])
	}
	fmt.Fprintln(c.App.Writer, doc)
	return nil
}
