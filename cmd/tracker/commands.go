package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/orchestrator"
	"solana-wallet-tracker/internal/storage"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "run one refresh cycle and print the result",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "background", Usage: "background cycle: incremental transfers, no pending placeholders"},
			&cli.BoolFlag{Name: "full", Usage: "force a full transfer fetch"},
			&cli.StringFlag{Name: "deep", Usage: "exhaustive history fetch for one wallet instead of a cycle"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "do not print progress"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			if !c.Bool("quiet") {
				events, unsubscribe := a.orch.Progress().Subscribe(0)
				defer unsubscribe()
				go func() {
					for p := range events {
						if p.Stage == domain.StageIdle {
							continue
						}
						fmt.Fprintf(os.Stderr, "[%3d%%] %-22s %s %s\n", p.Percent, p.Stage, p.Message, p.Detail)
					}
				}()
			}

			var res *orchestrator.Result
			if wallet := c.String("deep"); wallet != "" {
				res, err = a.orch.DeepFetch(c.Context, wallet)
			} else {
				if c.Bool("full") {
					a.orch.ForceFullRefresh()
				}
				res, err = a.orch.Refresh(c.Context, orchestrator.RefreshOptions{Foreground: !c.Bool("background")})
			}
			if res != nil {
				printJSON(res)
			}
			return err
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the cached dashboard without network calls",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print JSON"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.orch.View(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				printJSON(d)
				return nil
			}
			printDashboard(d)
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "delete every cached entry of the tracked asset",
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.orch.ClearData(c.Context); err != nil {
				return err
			}
			fmt.Printf("cleared cached data for %s\n", a.orch.AssetID())
			return nil
		},
	}
}

func projectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "manage saved projects",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list saved projects",
				Action: func(c *cli.Context) error {
					a, err := openBase(c)
					if err != nil {
						return err
					}
					defer a.Close()
					ps, err := a.stores.projects.List(c.Context)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tASSET\tWALLETS\tSNAPSHOT\tUPDATED")
					for _, p := range ps {
						snap := "-"
						if p.Snapshot != nil {
							snap = fmt.Sprintf("%d transfers", len(p.Snapshot.Transfers))
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", p.ID, p.Name, domain.ShortAddress(p.AssetID),
							len(p.Wallets), snap, formatMs(p.UpdatedAt))
					}
					return tw.Flush()
				},
			},
			{
				Name:  "save",
				Usage: "save the current asset, wallets and cached state as a project",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "project id (new when empty)"},
					&cli.StringFlag{Name: "name", Usage: "display name"},
				},
				Action: func(c *cli.Context) error {
					a, err := newApp(c)
					if err != nil {
						return err
					}
					defer a.Close()
					p, err := a.orch.SaveProject(c.Context, c.String("id"), c.String("name"))
					if err != nil {
						return err
					}
					fmt.Printf("saved project %s (%s)\n", p.ID, p.Name)
					return nil
				},
			},
			{
				Name:  "load",
				Usage: "make a project the active one for later commands",
				Flags: []cli.Flag{idFlag()},
				Action: func(c *cli.Context) error {
					a, err := openBase(c)
					if err != nil {
						return err
					}
					defer a.Close()
					p, err := a.stores.projects.Get(c.Context, c.String("id"))
					if err != nil {
						return err
					}
					if err := updateSettings(c, a, func(s *domain.Settings) { s.ActiveProjectID = p.ID }); err != nil {
						return err
					}
					fmt.Printf("active project: %s (%s)\n", p.ID, p.Name)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "delete a saved project",
				Flags: []cli.Flag{idFlag()},
				Action: func(c *cli.Context) error {
					a, err := openBase(c)
					if err != nil {
						return err
					}
					defer a.Close()
					id := c.String("id")
					if err := a.stores.projects.Delete(c.Context, id); err != nil {
						return err
					}
					return updateSettings(c, a, func(s *domain.Settings) {
						if s.ActiveProjectID == id {
							s.ActiveProjectID = ""
						}
					})
				},
			},
		},
	}
}

func idFlag() cli.Flag {
	return &cli.StringFlag{Name: "id", Usage: "project id", Required: true}
}

func updateSettings(c *cli.Context, a *app, fn func(*domain.Settings)) error {
	s, err := a.stores.settings.LoadSettings(c.Context)
	if errors.Is(err, storage.ErrNotFound) {
		s = &domain.Settings{}
	} else if err != nil {
		return err
	}
	fn(s)
	return a.stores.settings.SaveSettings(c.Context, s)
}

func printDashboard(d *orchestrator.Dashboard) {
	name := domain.ShortAddress(d.AssetID)
	if md := d.AssetInfo.Metadata; md != nil && md.Symbol != "" {
		name = md.Symbol
	}
	price := "-"
	if p := d.AssetInfo.Price; p != nil {
		price = p.PriceUSD.String()
	}
	fmt.Printf("%s  price=%s  last balances sync=%s\n\n", name, price, formatMs(d.LastSync[domain.KindBalances]))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tBALANCE\tCHANGE\tSTATUS\tTRANSFERS\tLAST ACTIVITY")
	for _, r := range d.Rows {
		balance := "-"
		if r.Balance != nil {
			balance = r.Balance.UIAmount.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.Account.DisplayName, balance, arrow(r.Change),
			r.Status, r.Transfers, formatMs(r.LastActivity))
	}
	tw.Flush()
}

func arrow(change int) string {
	switch {
	case change > 0:
		return "up"
	case change < 0:
		return "down"
	}
	return ""
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
