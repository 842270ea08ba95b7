package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/townspark/townspark/internal/apiclient"
)

func (r *runner) issuesCommand() *cli.Command {
	return &cli.Command{
		Name:  "issues",
		Usage: "browse and report municipal issues",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list issues",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "filter by status (open|in_progress|resolved|closed)"},
					&cli.StringFlag{Name: "category", Usage: "filter by category"},
					&cli.StringFlag{Name: "search", Usage: "full-text search"},
					&cli.BoolFlag{Name: "mine", Usage: "only issues reported by me"},
					&cli.IntFlag{Name: "page", Usage: "result page"},
				},
				Action: r.withClient(func(ctx context.Context, cmd *cli.Command, client *apiclient.Client) error {
					issues, err := client.ListIssues(ctx, apiclient.IssueFilter{
						Status:   apiclient.Status(cmd.String("status")),
						Category: apiclient.Category(cmd.String("category")),
						Search:   cmd.String("search"),
						Mine:     cmd.Bool("mine"),
						Page:     int(cmd.Int("page")),
					})
					if err != nil {
						return err
					}
					renderIssues(cmd.Root().Writer, issues)
					return nil
				}),
			},
			{
				Name:      "show",
				Usage:     "show one issue",
				ArgsUsage: "<id>",
				Action: r.withClient(func(ctx context.Context, cmd *cli.Command, client *apiclient.Client) error {
					id, err := issueID(cmd)
					if err != nil {
						return err
					}
					issue, err := client.GetIssue(ctx, id)
					if err != nil {
						return err
					}
					renderIssue(cmd.Root().Writer, issue)
					return nil
				}),
			},
			{
				Name:  "create",
				Usage: "report a new issue",
				Flags: issueInputFlags(false),
				Action: r.withClient(func(ctx context.Context, cmd *cli.Command, client *apiclient.Client) error {
					issue, err := client.CreateIssue(ctx, issueInput(cmd))
					if err != nil {
						return err
					}
					renderIssue(cmd.Root().Writer, issue)
					return nil
				}),
			},
			{
				Name:      "update",
				Usage:     "change fields of an issue",
				ArgsUsage: "<id>",
				Flags:     issueInputFlags(true),
				Action: r.withClient(func(ctx context.Context, cmd *cli.Command, client *apiclient.Client) error {
					id, err := issueID(cmd)
					if err != nil {
						return err
					}
					in := issueInput(cmd)
					if in == (apiclient.IssueInput{}) {
						return errors.New("nothing to update")
					}
					issue, err := client.UpdateIssue(ctx, id, in)
					if err != nil {
						return err
					}
					renderIssue(cmd.Root().Writer, issue)
					return nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete an issue",
				ArgsUsage: "<id>",
				Action: r.withClient(func(ctx context.Context, cmd *cli.Command, client *apiclient.Client) error {
					id, err := issueID(cmd)
					if err != nil {
						return err
					}
					if err := client.DeleteIssue(ctx, id); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.Root().Writer, "Issue %d deleted.\n", id)
					return nil
				}),
			},
			{
				Name:      "upvote",
				Usage:     "support an issue",
				ArgsUsage: "<id>",
				Action: r.withClient(func(ctx context.Context, cmd *cli.Command, client *apiclient.Client) error {
					id, err := issueID(cmd)
					if err != nil {
						return err
					}
					issue, err := client.UpvoteIssue(ctx, id)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.Root().Writer, "Issue %d now has %d upvotes.\n", issue.ID, issue.UpvoteCount)
					return nil
				}),
			},
		},
	}
}

// withClient adapts an action that needs the CLI session client.
func (r *runner) withClient(fn func(context.Context, *cli.Command, *apiclient.Client) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		client, shutdown, err := r.session(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()
		return fn(ctx, cmd, client)
	}
}

func issueID(cmd *cli.Command) (int64, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return 0, errors.New("missing issue id")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid issue id %q", arg)
	}
	return id, nil
}

func issueInputFlags(update bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "short summary"},
		&cli.StringFlag{Name: "description", Usage: "what is wrong and where"},
		&cli.StringFlag{Name: "category", Usage: "pothole|graffiti|streetlight|sidewalk|trash|other"},
		&cli.StringFlag{Name: "address", Usage: "street address"},
		&cli.FloatFlag{Name: "lat", Usage: "latitude"},
		&cli.FloatFlag{Name: "lon", Usage: "longitude"},
	}
	if update {
		flags = append(flags, &cli.StringFlag{Name: "status", Usage: "open|in_progress|resolved|closed"})
	}
	return flags
}

// issueInput collects the flags that were set; unset flags stay nil.
func issueInput(cmd *cli.Command) apiclient.IssueInput {
	var in apiclient.IssueInput
	if cmd.IsSet("title") {
		in.Title = ptr(cmd.String("title"))
	}
	if cmd.IsSet("description") {
		in.Description = ptr(cmd.String("description"))
	}
	if cmd.IsSet("category") {
		in.Category = ptr(apiclient.Category(cmd.String("category")))
	}
	if cmd.IsSet("address") {
		in.Address = ptr(cmd.String("address"))
	}
	if cmd.IsSet("lat") {
		in.Latitude = ptr(cmd.Float("lat"))
	}
	if cmd.IsSet("lon") {
		in.Longitude = ptr(cmd.Float("lon"))
	}
	if cmd.IsSet("status") {
		in.Status = ptr(apiclient.Status(cmd.String("status")))
	}
	return in
}

func ptr[T any](v T) *T { return &v }

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	return table
}

func renderIssues(w io.Writer, issues []apiclient.Issue) {
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(w, "No issues found.")
		return
	}

	table := newTable(w)
	table.SetHeader([]string{"ID", "Status", "Category", "Upvotes", "Title"})
	for _, issue := range issues {
		table.Append([]string{
			strconv.FormatInt(issue.ID, 10),
			string(issue.Status),
			string(issue.Category),
			strconv.Itoa(issue.UpvoteCount),
			issue.Title,
		})
	}
	table.Render()
}

func renderIssue(w io.Writer, issue *apiclient.Issue) {
	table := newTable(w)
	table.SetAutoWrapText(true)
	rows := [][]string{
		{"ID", strconv.FormatInt(issue.ID, 10)},
		{"Title", issue.Title},
		{"Status", string(issue.Status)},
		{"Category", string(issue.Category)},
		{"Description", issue.Description},
		{"Upvotes", strconv.Itoa(issue.UpvoteCount)},
	}
	if issue.Address != "" {
		rows = append(rows, []string{"Address", issue.Address})
	}
	if issue.Latitude != nil && issue.Longitude != nil {
		rows = append(rows, []string{"Location", fmt.Sprintf("%.6f, %.6f", *issue.Latitude, *issue.Longitude)})
	}
	if issue.Reporter != nil {
		rows = append(rows, []string{"Reporter", issue.Reporter.Username})
	}
	if !issue.CreatedAt.IsZero() {
		rows = append(rows, []string{"Reported", issue.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	table.AppendBulk(rows)
	table.Render()
}
