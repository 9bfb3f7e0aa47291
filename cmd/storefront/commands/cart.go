package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storefront/internal/app"
	"storefront/pkg/domain"
)

func newCartCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Args:  cobra.NoArgs,
		Short: "Manage the shopping cart",
	}

	cmd.AddCommand(
		newCartAddCommand(rt),
		newCartUpdateCommand(rt),
		newCartRemoveCommand(rt),
		newCartClearCommand(rt),
		newCartListCommand(rt),
	)

	return cmd
}

func newCartAddCommand(rt *runtime) *cobra.Command {
	var product domain.Product

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add one unit of a product",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			product.ID = args[0]
			if err := a.Cart().Add(cmd.Context(), product); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}

	cmd.Flags().StringVar(&product.Title, "title", "", "product title")
	cmd.Flags().StringVar(&product.Author, "author", "", "product author")
	cmd.Flags().Float64Var(&product.Price, "price", 0, "unit price")
	return cmd
}

func newCartUpdateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Set the quantity of a line item (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			if err := a.Cart().UpdateQuantity(cmd.Context(), args[0], qty); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}
}

func newCartRemoveCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <product-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a line item",
		Args:    cobra.ExactArgs(1),
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := a.Cart().Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}
}

func newCartClearCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := a.Cart().Clear(cmd.Context()); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}
}

func newCartListCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the cart",
		Args:    cobra.NoArgs,
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			return printCart(cmd, a)
		}),
	}
}

func printCart(cmd *cobra.Command, a *app.App) error {
	c := a.Cart()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tPRICE\tQTY")
	for _, it := range c.Items() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\n", it.ID, it.Title, it.Author, it.Price, it.Quantity)
	}
	fmt.Fprintf(w, "\t\t\t%.2f\t%d\n", c.Subtotal(), c.TotalQuantity())
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d line item(s)\n", c.Count())
	return nil
}
