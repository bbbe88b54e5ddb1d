package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/emmamdp/rickandmorty/pkg/client"
	"github.com/emmamdp/rickandmorty/pkg/types"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The catalog service reported a failure
	ExitCommandError = 2 // Invalid flags or arguments
	ExitNotFound     = 3 // The requested character is not cached
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// apiFailure turns an SDK error into an ExitError carrying the server's
// user-facing detail.
func apiFailure(action string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		code := ExitFailure
		if apiErr.StatusCode == 404 {
			code = ExitNotFound
		}
		detail := apiErr.Problem.Detail
		if detail == "" {
			detail = apiErr.Problem.Title
		}
		return NewExitError(code, fmt.Sprintf("%s: %s", action, detail))
	}
	return WrapExitError(ExitFailure, action, err)
}

// printer renders payloads in the selected output format.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) *printer {
	return &printer{format: opts.Output, w: w}
}

// structured writes v as JSON or YAML. It returns false for table output.
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so the YAML keys follow the API field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func (p *printer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(p.w, 0, 8, 2, ' ', 0)
}

func (p *printer) characterList(res *types.Resource[types.CharacterList]) error {
	if ok, err := p.structured(res); ok {
		return err
	}

	list := res.Spec
	if len(list.Items) == 0 {
		fmt.Fprintln(p.w, "no characters")
	} else {
		tw := p.table()
		writeCharacterRows(tw, list.Items)
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(p.w, "\nshowing %d-%d of %d loaded, filter %s\n",
			list.Offset+1, list.Offset+len(list.Items), list.Feed.Size, filterLabel(list.Feed.FilterKey))
	}

	if list.LoadError != nil {
		fmt.Fprintf(p.w, "warning: %s load failed: %s\n", list.LoadError.LoadType, list.LoadError.UserMessage)
		fmt.Fprintln(p.w, "run 'catalogctl feed retry' to try again")
	}
	return nil
}

func (p *printer) searchResult(res *types.Resource[types.SearchResult]) error {
	if ok, err := p.structured(res); ok {
		return err
	}

	result := res.Spec
	if len(result.Items) == 0 {
		fmt.Fprintln(p.w, "no characters")
		return nil
	}
	tw := p.table()
	writeCharacterRows(tw, result.Items)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(p.w, "\npage %d of %d, %d results\n", result.Page, result.TotalPages, result.Count)
	return nil
}

func writeCharacterRows(w io.Writer, items []types.Character) {
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSPECIES\tGENDER\tLOCATION")
	for _, c := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Status, c.Species, c.Gender, c.Location)
	}
}

func (p *printer) character(res *types.Resource[types.Character]) error {
	if ok, err := p.structured(res); ok {
		return err
	}

	c := res.Spec
	tw := p.table()
	for _, row := range [][2]string{
		{"ID", strconv.Itoa(c.ID)},
		{"Name", c.Name},
		{"Status", c.Status},
		{"Species", c.Species},
		{"Type", orDash(c.Type)},
		{"Gender", c.Gender},
		{"Origin", c.Origin},
		{"Location", c.Location},
		{"Image", c.Image},
		{"Episodes", strconv.Itoa(len(c.Episodes))},
		{"Created", c.Created},
	} {
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}

func (p *printer) feedStatus(res *types.Resource[types.FeedStatus]) error {
	if ok, err := p.structured(res); ok {
		return err
	}

	st := res.Spec
	window := "empty"
	if st.Size > 0 {
		window = fmt.Sprintf("%d-%d (%d characters)", st.FirstID, st.LastID, st.Size)
	}
	lastRefresh := "never"
	if st.LastRefreshAt != nil {
		lastRefresh = st.LastRefreshAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	tw := p.table()
	for _, row := range [][2]string{
		{"Filter", filterLabel(st.FilterKey)},
		{"Ready", strconv.FormatBool(st.Ready)},
		{"Window", window},
		{"Cached", strconv.Itoa(st.Cached)},
		{"Refresh", loadStateLabel(st.Refresh)},
		{"Prepend", loadStateLabel(st.Prepend)},
		{"Append", loadStateLabel(st.Append)},
		{"Last refresh", lastRefresh},
	} {
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}

func (p *printer) loadResult(res *types.Resource[types.LoadResult]) error {
	if ok, err := p.structured(res); ok {
		return err
	}

	r := res.Spec
	switch {
	case r.Count == 0 && r.EndOfPagination:
		fmt.Fprintf(p.w, "%s: end of pagination, nothing loaded\n", r.LoadType)
	case r.EndOfPagination:
		fmt.Fprintf(p.w, "%s: page %d, %d characters (%d-%d), end of pagination\n",
			r.LoadType, r.Page, r.Count, r.FirstID, r.LastID)
	default:
		fmt.Fprintf(p.w, "%s: page %d, %d characters (%d-%d)\n",
			r.LoadType, r.Page, r.Count, r.FirstID, r.LastID)
	}
	return nil
}

func loadStateLabel(st types.LoadState) string {
	label := st.State
	if st.Error != nil {
		label += ": " + st.Error.UserMessage
	}
	if st.EndReached {
		label += ", end reached"
	}
	return label
}

func filterLabel(key string) string {
	if key == "" {
		return "(none)"
	}
	return strconv.Quote(key)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
