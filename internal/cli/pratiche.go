package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
	"github.com/nhle/studio-pratiche/internal/store"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

func newPraticheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pratiche",
		Aliases: []string{"p"},
		Short:   "List and create case files",
	}
	cmd.AddCommand(newPraticheListCmd(app))
	cmd.AddCommand(newPraticheSummaryCmd(app))
	cmd.AddCommand(newPraticheNewCmd(app))
	cmd.AddCommand(newPraticheAgendaCmd(app))
	return cmd
}

type caseFileRow struct {
	ID       string `json:"id"`
	Codice   string `json:"codice"`
	Cliente  string `json:"cliente"`
	Agenzia  string `json:"agenzia"`
	Stato    string `json:"stato"`
	Totale   string `json:"importoTotale"`
	Pagata   bool   `json:"pagata"`
	Modified string `json:"dataUltimaModifica"`
}

func newPraticheListCmd(app *App) *cobra.Command {
	var stato, agenzia, search string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List case files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := store.Query{Search: search, Limit: limit}
			if stato != "" {
				s := model.Stato(stato)
				if !s.Valid() {
					return writeErr(cmd, fmt.Errorf("unknown stato %q", stato))
				}
				q.Stato = &s
			}
			if cmd.Flags().Changed("agenzia") {
				q.Agenzia = &agenzia
			}

			svc, closeFn, err := app.services(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeFn()

			cfs, err := svc.Store.List(cmd.Context(), q)
			if err != nil {
				return writeErr(cmd, err)
			}

			rows := make([]caseFileRow, 0, len(cfs))
			for _, cf := range cfs {
				rows = append(rows, caseFileRow{
					ID:       cf.ID,
					Codice:   cf.Codice,
					Cliente:  cf.Cliente,
					Agenzia:  cf.Agenzia,
					Stato:    string(cf.Stato),
					Totale:   cf.ImportoTotale.StringFixed(2),
					Pagata:   workflow.IsPaid(cf),
					Modified: cf.DataUltimaModifica.Format("2006-01-02 15:04"),
				})
			}
			if app.JSON {
				return writeJSON(cmd, rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODICE\tCLIENTE\tAGENZIA\tSTATO\tTOTALE\tPAGATA")
			for i, cf := range cfs {
				paid := "no"
				if rows[i].Pagata {
					paid = "sì"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", cf.Codice, cf.Cliente, cf.Agenzia, cf.Stato.Label(), money.Format(cf.ImportoTotale), paid)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&stato, "stato", "", "Filter by stato (in_corso|in_attesa|completata|annullata)")
	cmd.Flags().StringVar(&agenzia, "agenzia", "", "Filter by agency (empty string for private clients)")
	cmd.Flags().StringVar(&search, "search", "", "Match codice, cliente or indirizzo")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	return cmd
}

func newPraticheSummaryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Collected and outstanding amounts per role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := app.services(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeFn()

			cfs, err := svc.Store.List(cmd.Context(), store.Query{})
			if err != nil {
				return writeErr(cmd, err)
			}
			active := cfs[:0]
			for _, cf := range cfs {
				if cf.Stato != model.StatoAnnullata {
					active = append(active, cf)
				}
			}
			sum := workflow.SummarizeAmounts(active)

			if app.JSON {
				type totals struct {
					Base  string `json:"base"`
					Gross string `json:"gross"`
				}
				out := map[string]map[string]totals{"collected": {}, "outstanding": {}}
				for _, role := range money.Roles {
					c, o := sum.Collected[role], sum.Outstanding[role]
					out["collected"][string(role)] = totals{c.Base.StringFixed(2), c.Gross.StringFixed(2)}
					out["outstanding"][string(role)] = totals{o.Base.StringFixed(2), o.Gross.StringFixed(2)}
				}
				return writeJSON(cmd, out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "RUOLO\tINCASSATO\tLORDO\tDA INCASSARE\tLORDO\t")
			for _, role := range money.Roles {
				c, o := sum.Collected[role], sum.Outstanding[role]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", role,
					money.Format(c.Base), money.Format(c.Gross),
					money.Format(o.Base), money.Format(o.Gross))
			}
			return tw.Flush()
		},
	}
}

func newPraticheNewCmd(app *App) *cobra.Command {
	var cliente, indirizzo, agenzia, apeTotal string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a case file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := app.services(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeFn()

			ctx := cmd.Context()
			existing, err := svc.Store.List(ctx, store.Query{})
			if err != nil {
				return writeErr(cmd, err)
			}
			now := svc.Editor.Now()
			cf, err := workflow.NewCaseFile(existing, cliente, indirizzo, agenzia, now)
			if err != nil {
				return writeErr(cmd, err)
			}
			if apeTotal != "" {
				total, err := money.Parse(apeTotal)
				if err != nil {
					return writeErr(cmd, err)
				}
				if cf, _, err = workflow.SetAPETotal(cf, total, now); err != nil {
					return writeErr(cmd, err)
				}
			}

			id, err := svc.Store.Create(ctx, cf)
			if err != nil {
				return writeErr(cmd, err)
			}
			if app.JSON {
				return writeJSON(cmd, map[string]string{"id": id, "codice": cf.Codice})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Creata pratica %s (%s)\n", cf.Codice, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&cliente, "cliente", "", "Client name")
	cmd.Flags().StringVar(&indirizzo, "indirizzo", "", "Property address")
	cmd.Flags().StringVar(&agenzia, "agenzia", "", "Agency the case file came through")
	cmd.Flags().StringVar(&apeTotal, "ape-total", "", "Flat-fee APE total, split into the fixed studio and bollettino shares")
	_ = cmd.MarkFlagRequired("cliente")
	return cmd
}

func newPraticheAgendaCmd(app *App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Open tasks with a due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := app.services(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeFn()

			cfs, err := svc.Store.List(cmd.Context(), store.Query{})
			if err != nil {
				return writeErr(cmd, err)
			}
			items := workflow.UpcomingTasks(cfs, svc.Editor.Now(), daysToDuration(days))

			if app.JSON {
				type row struct {
					Codice   string `json:"codice"`
					Stage    string `json:"stage"`
					Task     string `json:"task"`
					Due      string `json:"dueDate"`
					Schedule string `json:"schedule"`
				}
				out := make([]row, 0, len(items))
				for _, it := range items {
					out = append(out, row{it.Codice, string(it.Stage), it.Task.Text, it.Task.DueDate.UTC().Format("2006-01-02T15:04:05Z"), it.Task.ScheduleState().String()})
				}
				return writeJSON(cmd, out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCADENZA\tCODICE\tCLIENTE\tFASE\tATTIVITÀ\tCALENDARIO")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					it.Task.DueDate.Local().Format("02/01 15:04"), it.Codice, it.Cliente, it.Stage, it.Task.Text, it.Task.ScheduleState())
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&days, "days", 14, "Look ahead this many days (0 for all)")
	return cmd
}

func daysToDuration(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
