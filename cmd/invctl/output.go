package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rl1809/digital-inventory/internal/core/domain"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func groupTable(w io.Writer, groups []domain.InventoryGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No inventory groups found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKEYS\tASSETS\tPRODUCT\tVERSION")
	for _, g := range groups {
		product := "-"
		if g.IsLinked() {
			product = g.LinkedProductTitle
			if product == "" {
				product = g.LinkedProductID
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\n",
			g.ID, g.Name, strings.Join(g.AssetKeys, ","), len(g.Records), product, g.Version)
	}
	tw.Flush()
}

// groupDetail prints a group header followed by its records, one row per
// record with columns in asset key order.
func groupDetail(w io.Writer, g domain.InventoryGroup) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", g.Name)
	fmt.Fprintf(tw, "ID:\t%s\n", g.ID)
	if g.IsLinked() {
		fmt.Fprintf(tw, "Product:\t%s (%s)\n", g.LinkedProductTitle, g.LinkedProductID)
	}
	fmt.Fprintf(tw, "Version:\t%d\n", g.Version)
	if !g.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", g.UpdatedAt.Format(time.RFC3339))
	}
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\t%s\n", strings.Join(g.AssetKeys, "\t"))
	for i, r := range g.Records {
		values := make([]string, len(g.AssetKeys))
		for j, k := range g.AssetKeys {
			values[j] = r[k]
		}
		fmt.Fprintf(tw, "%d\t%s\n", i, strings.Join(values, "\t"))
	}
	tw.Flush()
}

func productTable(w io.Writer, products []domain.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No products found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tLINKED GROUP")
	for _, p := range products {
		linked := p.LinkedGroupID
		if linked == "" {
			linked = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Price.StringFixed(2), linked)
	}
	tw.Flush()
}

// parseAssignments turns Key=Value pairs into a record patch.
func parseAssignments(pairs []string) (domain.Record, error) {
	out := make(domain.Record, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want Key=Value", pair)
		}
		out[key] = value
	}
	return out, nil
}
