package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nimasrn/intake-gateway/internal/console"
	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store the admin token after the server accepts it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newConsole()
		if err != nil {
			return err
		}
		if err := c.Login(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "signed in, %d submissions in the inbox\n", c.Total())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored admin token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newConsole()
		if err != nil {
			return err
		}
		return c.SignOut()
	},
}

var listFlags struct {
	page   int
	status string
	source string
	query  string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show one page of submissions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newConsole()
		if err != nil {
			return err
		}
		if err := c.Resume(); err != nil {
			return err
		}
		c.SetStatus(model.ParseSubmissionStatus(listFlags.status))
		c.SetSource(listFlags.source)
		if err := c.Load(cmd.Context(), listFlags.page); err != nil {
			return err
		}
		c.SetQuery(listFlags.query)
		printRows(cmd, c)
		return nil
	},
}

var mutationPage int

var markReadCmd = &cobra.Command{
	Use:   "mark-read <id>...",
	Short: "Mark submissions as read",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := resumed(cmd.Context(), mutationPage)
		if err != nil {
			return err
		}
		n, err := c.MarkRead(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %d\n", n)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Move submissions out of the inbox",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := resumed(cmd.Context(), mutationPage)
		if err != nil {
			return err
		}
		n, err := c.Delete(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
		return nil
	},
}

var exportFlags struct {
	format string
	ids    []string
	page   int
	out    string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export selected submissions that were already read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := console.ParseExportFormat(exportFlags.format)
		if err != nil {
			return err
		}
		c, err := resumed(cmd.Context(), exportFlags.page)
		if err != nil {
			return err
		}
		c.Select(exportFlags.ids...)

		path := exportFlags.out
		if path == "" {
			path = console.ExportFileName(format, time.Now())
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		n, err := c.Export(f, format)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d submissions to %s\n", n, path)
		return nil
	},
}

func init() {
	listCmd.Flags().IntVar(&listFlags.page, "page", 1, "page number, 25 rows per page")
	listCmd.Flags().StringVar(&listFlags.status, "status", "all", "all, unread or read")
	listCmd.Flags().StringVar(&listFlags.source, "source", "", "only this source tag")
	listCmd.Flags().StringVar(&listFlags.query, "query", "", "filter the loaded page by text")

	markReadCmd.Flags().IntVar(&mutationPage, "page", 1, "page to refresh before the action")
	deleteCmd.Flags().IntVar(&mutationPage, "page", 1, "page to refresh before the action")

	exportCmd.Flags().StringVar(&exportFlags.format, "format", "csv", "csv or xlsx")
	exportCmd.Flags().StringSliceVar(&exportFlags.ids, "ids", nil, "submission ids on the loaded page")
	exportCmd.Flags().IntVar(&exportFlags.page, "page", 1, "page holding the ids")
	exportCmd.Flags().StringVarP(&exportFlags.out, "out", "o", "", "output file")
	_ = exportCmd.MarkFlagRequired("ids")
}

func printRows(cmd *cobra.Command, c *console.Console) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tREAD\tSOURCE\tEMAIL\tNAME\tSUBJECT")
	for _, r := range c.Visible() {
		read := ""
		if r.ReadAt != nil {
			read = r.ReadAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			read,
			r.Source,
			r.Email,
			short(r.Name, 24),
			short(r.Subject, 40),
		)
	}
	_ = w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d total, %d unread on this page\n",
		c.Page(), c.PageCount(), c.Total(), c.UnreadCount())
}

func short(s *string, n int) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if r := []rune(v); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return v
}
