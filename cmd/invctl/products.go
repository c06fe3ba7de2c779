package main

import (
	"fmt"
	"mime"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rl1809/digital-inventory/internal/core/domain"
)

func newLinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "link <group-id> <product-id>",
		Short: "Link an inventory group to a product",
		Long: `Link a saved inventory group to a product. A product can be linked to
at most one group; linking a product held by another group fails.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := m.LinkProduct(ctx, args[0], args[1]); err != nil {
				return err
			}
			g, _ := m.Group(args[0])
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), g)
			}
			a.report(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func newUnlinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <group-id>",
		Short: "Remove the product link from an inventory group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := m.UnlinkProduct(ctx, args[0]); err != nil {
				return err
			}
			g, _ := m.Group(args[0])
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), g)
			}
			a.report(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func newProductsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "List products available for linking",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAuth(); err != nil {
				return err
			}
			products, err := a.api.ListProducts(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing products: %w", err)
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), products)
			}
			productTable(cmd.OutOrStdout(), products)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <product-id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAuth(); err != nil {
				return err
			}
			p, err := a.api.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting product: %w", err)
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), p)
			}
			productTable(cmd.OutOrStdout(), []domain.Product{*p})
			return nil
		},
	})
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a product image",
		Long: `Upload a product image and print its public URL. JPEG, PNG, WebP and
GIF images up to 5 MiB are accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAuth(); err != nil {
				return err
			}
			ct := contentType
			if ct == "" {
				ct = mime.TypeByExtension(filepath.Ext(args[0]))
			}
			if ct == "" {
				return fmt.Errorf("cannot detect content type of %s, pass --content-type", args[0])
			}

			url, err := a.api.UploadImage(cmd.Context(), args[0], ct)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", filepath.Base(args[0]), err)
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"url": url})
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "Image MIME type (default: from file extension)")
	return cmd
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.api.Health(cmd.Context()); err != nil {
				return fmt.Errorf("server %s unhealthy: %w", a.cfg.ServerURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server %s is healthy\n", a.cfg.ServerURL)
			return nil
		},
	}
}
