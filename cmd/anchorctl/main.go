// Command anchorctl inspects stored comment anchors and resolves them against
// document snapshots.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"marginalia/api/internal/anchor"
	"marginalia/api/internal/crdt"
)

var CLI struct {
	Inspect InspectCmd `cmd:"" help:"Decode a stored anchor field"`
	Build   BuildCmd   `cmd:"" help:"Build a stored anchor for a range of a snapshot"`
	Resolve ResolveCmd `cmd:"" help:"Resolve a stored anchor against a snapshot"`
}

type output struct {
	w io.Writer
}

var (
	labelColor = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed)
)

func (o *output) field(name string, value any) {
	labelColor.Fprintf(o.w, "%-8s", name)
	fmt.Fprintf(o.w, " %v\n", value)
}

// InspectCmd prints the contents of one encoded anchor field.
type InspectCmd struct {
	Field string `arg:"" help:"Encoded position or fallback payload"`
}

func (c *InspectCmd) Run(out *output) error {
	if anchor.IsFallbackPayload(c.Field) {
		offset, err := anchor.ParseFallback(c.Field)
		if err != nil {
			return err
		}
		out.field("mode", anchor.ModeFallback)
		out.field("offset", offset)
		return nil
	}
	pos, err := anchor.DecodePosition(c.Field)
	if err != nil {
		return err
	}
	out.field("mode", anchor.ModeCRDT)
	out.field("kind", pos.Kind)
	if pos.Kind == anchor.KindCharacter {
		out.field("site", pos.Site)
		out.field("clock", pos.Clock)
	}
	out.field("assoc", pos.Assoc)
	return nil
}

// BuildCmd encodes an anchor for [From, To) of a snapshot.
type BuildCmd struct {
	Snapshot string `required:"" type:"existingfile" help:"Path to a document snapshot"`
	From     int    `required:"" help:"Range start offset"`
	To       int    `required:"" help:"Range end offset"`
}

func (c *BuildCmd) Run(out *output) error {
	doc, err := loadSnapshot(c.Snapshot)
	if err != nil {
		return err
	}
	a, err := anchor.Build(doc, c.From, c.To)
	if err != nil {
		return err
	}
	stored, err := anchor.Encode(a)
	if err != nil {
		return err
	}
	out.field("from", *stored.FromRelative)
	out.field("to", *stored.ToRelative)
	return nil
}

// ResolveCmd resolves an encoded anchor pair against a snapshot.
type ResolveCmd struct {
	Snapshot string `required:"" type:"existingfile" help:"Path to a document snapshot"`
	From     string `required:"" help:"Encoded start position"`
	To       string `required:"" help:"Encoded end position"`
}

func (c *ResolveCmd) Run(out *output) error {
	doc, err := loadSnapshot(c.Snapshot)
	if err != nil {
		return err
	}
	from, to := c.From, c.To
	got := anchor.ResolveStored(doc, anchor.Stored{FromRelative: &from, ToRelative: &to})
	if !got.Valid {
		failColor.Fprintf(out.w, "unresolved: %s\n", got.Status)
		if got.Err != nil {
			fmt.Fprintf(out.w, "%v\n", got.Err)
		}
		return nil
	}
	quote, err := doc.Slice(got.From, got.To)
	if err != nil {
		return err
	}
	okColor.Fprintf(out.w, "resolved [%d, %d)\n", got.From, got.To)
	out.field("quote", fmt.Sprintf("%q", quote))
	return nil
}

func loadSnapshot(path string) (*crdt.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	doc, err := crdt.Restore(data)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", path, err)
	}
	return doc, nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("anchorctl"),
		kong.Description("Inspect and resolve comment anchors."),
		kong.UsageOnError(),
		kong.Bind(&output{w: os.Stdout}),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
