package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/resolve"
)

var validateFlags struct {
	root    string
	sheet   string
	require []string
	watch   bool
}

var ValidateCmd = &cobra.Command{
	Use:   "validate <cohort>",
	Short: "Parse a cohort descriptor and check its resources",
	Long: `Parse a cohort descriptor (CSV or XLSX) and resolve every resource
against the data root. Cases lacking a required kind are reported as unusable.

With --watch the check runs again whenever the descriptor changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	f := ValidateCmd.Flags()
	f.StringVar(&validateFlags.root, "root", "", "data root (default: the descriptor's directory)")
	f.StringVar(&validateFlags.sheet, "sheet", "", "XLSX sheet (default: first)")
	f.StringSliceVar(&validateFlags.require, "require", nil, "required resource kinds: image, label, pointset, other")
	f.BoolVar(&validateFlags.watch, "watch", false, "re-validate whenever the descriptor changes")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	root := validateFlags.root
	if root == "" {
		root = filepath.Dir(path)
	}
	kinds, err := parseKinds(validateFlags.require)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !validateFlags.watch {
		return checkCohort(out, path, root, kinds)
	}

	ctx := cmd.Context()
	for {
		wctx, cancel, err := descriptor.UntilModifiedContext(ctx, path)
		if err != nil {
			return err
		}
		if err := checkCohort(out, path, root, kinds); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		fmt.Fprintln(out, "watching", path, "for changes...")
		<-wctx.Done()
		cancel()
		if ctx.Err() != nil {
			return nil
		}
		// editors often write in several steps
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return nil
		}
	}
}

func checkCohort(out io.Writer, path, root string, kinds []descriptor.Kind) error {
	c, err := descriptor.ParseFile(path, descriptor.Options{Sheet: validateFlags.sheet})
	if err != nil {
		var dup *descriptor.DuplicateUIDError
		if errors.As(err, &dup) {
			for _, d := range dup.Duplicates {
				fmt.Fprintf(out, "duplicate uid %q on rows %v\n", d.UID, d.Rows)
			}
		}
		return err
	}

	fmt.Fprintf(out, "%s: %d cases, columns %s\n", c.Source, c.Len(), strings.Join(c.Columns, ", "))
	unusable := 0
	r := resolve.New(root)
	for _, rec := range c.Cases {
		res := r.Resolve(rec)
		var notes []string
		if missing := res.Missing(); len(missing) > 0 {
			notes = append(notes, "missing "+strings.Join(missing, ", "))
		}
		if err := res.Require(kinds...); err != nil {
			notes = append(notes, err.Error())
			unusable++
		}
		if len(notes) > 0 {
			fmt.Fprintf(out, "  %s (row %d): %s\n", rec.UID, rec.Row, strings.Join(notes, "; "))
		}
	}
	if unusable > 0 {
		return fmt.Errorf("%d of %d cases unusable", unusable, c.Len())
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func parseKinds(names []string) ([]descriptor.Kind, error) {
	out := make([]descriptor.Kind, 0, len(names))
	for _, n := range names {
		k, ok := descriptor.ParseKind(n)
		if !ok {
			return nil, fmt.Errorf("unknown resource kind %q", n)
		}
		out = append(out, k)
	}
	return out, nil
}
