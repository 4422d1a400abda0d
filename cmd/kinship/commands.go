package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinship-crm/kinship/pkg/client"
	"github.com/kinship-crm/kinship/pkg/client/cache"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/loader"
	fileloader "github.com/kinship-crm/kinship/pkg/loader/io"
	"github.com/kinship-crm/kinship/pkg/wizard"
)

const cacheTTL = 5 * time.Minute

var files = fileloader.NewFileLoader()

// connect builds the client and its cached query layer from the global
// flags. The returned close func releases the cache connection.
func connect(cmd *cobra.Command) (*client.Queries, func(), error) {
	baseURL, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	redisURL, _ := cmd.Flags().GetString("redis")

	c := client.New(baseURL,
		client.WithToken(token),
		client.WithRetry(2, 500*time.Millisecond, 5*time.Second),
	)
	if redisURL == "" {
		return client.NewQueries(c, cache.NewMemory(), cacheTTL), func() {}, nil
	}
	r, err := cache.NewRedisFromURL(cmd.Context(), redisURL, "kinship:")
	if err != nil {
		return nil, nil, err
	}
	return client.NewQueries(c, r, cacheTTL), func() { _ = r.Close() }, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput returns the text named by arg: a URL is passed through, "-"
// or nothing reads stdin, anything else is a file path.
func readInput(cmd *cobra.Command, args []string) (text string, fromStdin bool, err error) {
	arg := "-"
	if len(args) > 0 {
		arg = args[0]
	}
	switch {
	case strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://"):
		return arg, false, nil
	case arg == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), true, err
	default:
		data, err := files.Text(cmd.Context(), loader.Source{Path: arg})
		return string(data), false, err
	}
}

func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// runWizard drives a workflow from input to result on the command line.
func runWizard[C, R any](cmd *cobra.Command, args []string, w *wizard.Wizard[C, R], noun string, describe func(C) string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	yes, _ := cmd.Flags().GetBool("yes")
	drop, _ := cmd.Flags().GetIntSlice("drop")
	asJSON, _ := cmd.Flags().GetBool("json")

	input, fromStdin, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	if fromStdin && !yes {
		return errors.New("input was read from stdin; pass --yes to confirm up front")
	}

	w.Open()
	if err := w.Parse(ctx, input); err != nil {
		if errors.Is(err, wizard.ErrNoCandidates) {
			fmt.Fprintf(out, "No %s found.\n", noun)
			return nil
		}
		return err
	}

	slices.Sort(drop)
	for _, n := range slices.Backward(drop) {
		if err := w.Remove(n - 1); err != nil {
			return fmt.Errorf("--drop %d: %w", n, err)
		}
	}

	candidates := w.Candidates()
	if !asJSON {
		for i, c := range candidates {
			fmt.Fprintf(out, "%3d. %s\n", i+1, describe(c))
		}
	}
	if !yes {
		ok, err := confirm(cmd, fmt.Sprintf("Apply %d %s?", len(candidates), noun))
		if err != nil {
			return err
		}
		if !ok {
			w.Cancel()
			fmt.Fprintln(out, "Nothing changed.")
			return nil
		}
	}

	if err := w.Commit(ctx); err != nil {
		return err
	}
	result, _ := w.Result()
	return printJSON(out, result)
}

func describeContact(c common.ContactCandidate) string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	var extra []string
	if c.Company != "" {
		extra = append(extra, c.Company)
	}
	for _, e := range c.Emails {
		extra = append(extra, e.Value)
	}
	if len(c.Tags) > 0 {
		extra = append(extra, "#"+strings.Join(c.Tags, " #"))
	}
	if len(extra) == 0 {
		return name
	}
	return name + " (" + strings.Join(extra, ", ") + ")"
}

func describeUpdate(u common.ProfileUpdate) string {
	who := u.PersonName
	if who == "" {
		who = fmt.Sprintf("person %d", u.PersonID)
	}
	return fmt.Sprintf("%s: %s = %q", who, u.Field, u.Value)
}

func runImport(cmd *cobra.Command, args []string) error {
	q, closeFn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	return runWizard(cmd, args, wizard.NewContactImport(q), "contacts", describeContact)
}

func runUpdates(cmd *cobra.Command, args []string) error {
	q, closeFn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	return runWizard(cmd, args, wizard.NewProfileUpdates(q), "updates", describeUpdate)
}

func runGraph(cmd *cobra.Command, _ []string) error {
	q, closeFn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	center, _ := cmd.Flags().GetInt64("center")
	depth, _ := cmd.Flags().GetInt("depth")
	g, err := q.Client().RenderedGraph(cmd.Context(), client.GraphOptions{Center: center, Depth: depth})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, g)
	}
	labels := make(map[int64]string, len(g.Nodes))
	for _, n := range g.Nodes {
		labels[n.ID] = n.Label
		mark := ""
		if n.Focal {
			mark = " *"
		}
		fmt.Fprintf(out, "%-24s (%7.1f, %7.1f)%s\n", n.Label, n.X, n.Y, mark)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(out, "%s -[%s]- %s\n", labels[e.Source], e.Label, labels[e.Target])
	}
	return nil
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	q, closeFn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := q.Dashboard(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, stats)
	}
	fmt.Fprintf(out, "Persons:       %d\n", stats.Persons)
	fmt.Fprintf(out, "Relationships: %d\n", stats.Relationships)
	fmt.Fprintf(out, "Anecdotes:     %d\n", stats.Anecdotes)
	fmt.Fprintf(out, "Photos:        %d\n", stats.Photos)
	fmt.Fprintf(out, "Employments:   %d\n", stats.Employments)
	fmt.Fprintf(out, "Tags:          %d\n", stats.Tags)
	fmt.Fprintf(out, "Groups:        %d\n", stats.Groups)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, closeFn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := q.Client().Search(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, res)
	}
	for _, p := range res.Persons {
		fmt.Fprintf(out, "person   %5d  %s\n", p.ID, p.FullName())
	}
	for _, a := range res.Anecdotes {
		fmt.Fprintf(out, "anecdote %5d  %s\n", a.ID, a.Title)
	}
	for _, t := range res.Tags {
		fmt.Fprintf(out, "tag      %5d  %s\n", t.ID, t.Name)
	}
	for _, g := range res.Groups {
		fmt.Fprintf(out, "group    %5d  %s\n", g.ID, g.Name)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	q, closeFn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	format, _ := cmd.Flags().GetString("format")
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		path = "kinship-export." + format
	}
	body, err := q.Client().Export(cmd.Context(), format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(body))
	return nil
}

func runPhoto(cmd *cobra.Command, args []string) error {
	data, err := files.Text(cmd.Context(), loader.Source{Path: args[0]})
	if err != nil {
		return err
	}
	if ct := fileloader.ContentType(data, args[0]); !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("%s is %s, not an image", args[0], ct)
	}

	q, closeFn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	up := client.PhotoUpload{FileName: filepath.Base(args[0]), File: bytes.NewReader(data)}
	up.Caption, _ = cmd.Flags().GetString("caption")
	up.DateTaken, _ = cmd.Flags().GetString("date")
	up.Location, _ = cmd.Flags().GetString("location")
	up.PersonIDs, _ = cmd.Flags().GetInt64Slice("person")

	photo, err := q.Client().UploadPhoto(cmd.Context(), up)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, photo)
	}
	fmt.Fprintf(out, "Uploaded photo %d: %s\n", photo.ID, photo.FileURL)
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	baseURL, _ := cmd.Flags().GetString("url")
	if err := client.New(baseURL).Health(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}
