package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

var listFilter prompt.ListFilter

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List public prompts, most copied first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		prompts, err := api.ListPrompts(ctx, listFilter)
		if err != nil {
			return err
		}
		return printPrompts(cmd.OutOrStdout(), prompts)
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List your own prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		prompts, err := api.MyPrompts(ctx)
		if err != nil {
			return err
		}
		return printPrompts(cmd.OutOrStdout(), prompts)
	},
}

var (
	submitTitle    string
	submitCategory string
	submitTags     []string
	submitFile     string
	submitPrivate  bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Share a new prompt",
	Long: `Submits a prompt. The prompt text is read from --file, or from standard
input when --file is "-" or omitted. Signed-in submissions are owned by you
and can be edited later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readBody(cmd.InOrStdin(), submitFile)
		if err != nil {
			return err
		}
		public := !submitPrivate
		req := &prompt.CreateRequest{
			Title:    submitTitle,
			Body:     body,
			Category: submitCategory,
			Tags:     submitTags,
			IsPublic: &public,
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		p, err := api.CreatePrompt(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", p.ID, p.Title)
		return nil
	},
}

var (
	editTitle    string
	editCategory string
	editTags     []string
	editFile     string
	editPublic   bool
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit one of your prompts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(); err != nil {
			return err
		}
		req, err := buildUpdate(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		p, err := api.UpdatePrompt(ctx, args[0], req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", p.ID, p.Title)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one of your prompts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := api.DeletePrompt(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <id>",
	Short: "Copy a prompt to the clipboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		p, err := api.GetPrompt(ctx, args[0])
		if err != nil {
			return err
		}
		if err := clipboardWriteAll(p.Body); err != nil {
			return fmt.Errorf("writing clipboard: %w", err)
		}
		copies, err := api.CopyPrompt(ctx, p.ID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "copied, but the copy count was not updated: %v\n", err)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Copied %q (%d copies)\n", p.Title, copies)
		return nil
	},
}

var waitlistCmd = &cobra.Command{
	Use:   "waitlist <email>",
	Short: "Join the waitlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		added, err := api.JoinWaitlist(ctx, args[0])
		if err != nil {
			return err
		}
		if added {
			fmt.Fprintln(cmd.OutOrStdout(), "You're on the list.")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "You were already on the list.")
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listFilter.Tag, "tag", "", "only prompts with this tag")
	listCmd.Flags().StringVar(&listFilter.Category, "category", "", "only prompts in this category")
	listCmd.Flags().StringVarP(&listFilter.Query, "query", "q", "", "substring match on title and text")
	listCmd.Flags().IntVar(&listFilter.Limit, "limit", 0, "maximum number of prompts")

	submitCmd.Flags().StringVar(&submitTitle, "title", "", "prompt title (required)")
	submitCmd.Flags().StringVar(&submitCategory, "category", "", "category (default General)")
	submitCmd.Flags().StringSliceVar(&submitTags, "tag", nil, "tag, repeatable")
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "-", "file with the prompt text")
	submitCmd.Flags().BoolVar(&submitPrivate, "private", false, "hide from the public listing")
	submitCmd.MarkFlagRequired("title")

	editCmd.Flags().StringVar(&editTitle, "title", "", "new title")
	editCmd.Flags().StringVar(&editCategory, "category", "", "new category")
	editCmd.Flags().StringSliceVar(&editTags, "tag", nil, "replace tags, repeatable")
	editCmd.Flags().StringVarP(&editFile, "file", "f", "", "file with the new prompt text (- for stdin)")
	editCmd.Flags().BoolVar(&editPublic, "public", true, "show in the public listing")
}

// buildUpdate includes only the flags that were set.
func buildUpdate(cmd *cobra.Command) (*prompt.UpdateRequest, error) {
	flags := cmd.Flags()
	req := &prompt.UpdateRequest{}
	if flags.Changed("title") {
		req.Title = &editTitle
	}
	if flags.Changed("category") {
		req.Category = &editCategory
	}
	if flags.Changed("tag") {
		req.Tags = &editTags
	}
	if flags.Changed("public") {
		req.IsPublic = &editPublic
	}
	if flags.Changed("file") {
		body, err := readBody(cmd.InOrStdin(), editFile)
		if err != nil {
			return nil, err
		}
		req.Body = &body
	}
	if req.Empty() {
		return nil, errors.New("nothing to change; pass at least one of --title, --category, --tag, --file, --public")
	}
	return req, nil
}

func readBody(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading prompt text: %w", err)
	}
	body := strings.TrimSpace(string(data))
	if body == "" {
		return "", errors.New("prompt text is empty")
	}
	return body, nil
}

func requireSession() error {
	if _, ok := sess.Current(); !ok {
		return errors.New("not signed in; run promptctl login")
	}
	return nil
}

func printPrompts(w io.Writer, prompts []*prompt.Prompt) error {
	if len(prompts) == 0 {
		fmt.Fprintln(w, "No prompts.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tCOPIES\tTAGS")
	for _, p := range prompts {
		title := p.Title
		if !p.IsPublic {
			title += " (private)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, title, p.Category, p.Copies, strings.Join(p.Tags, ","))
	}
	return tw.Flush()
}
