package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/chmouel/gitpanel/internal/actions"
	"github.com/chmouel/gitpanel/internal/diff"
	"github.com/chmouel/gitpanel/internal/render"
)

var _ actions.Opener = (*terminalOpener)(nil)

// terminalOpener prints diffs and either launches an editor on files or
// prints their paths.
type terminalOpener struct {
	out          io.Writer
	src          diff.ContentSource
	renderer     *render.Renderer
	contextLines int
	// editor is the command line used to open files; empty prints the path.
	editor []string
}

// editorFromEnv reads $GITPANEL_EDITOR, then $VISUAL, then $EDITOR.
func editorFromEnv() []string {
	for _, key := range []string{"GITPANEL_EDITOR", "VISUAL", "EDITOR"} {
		if fields := strings.Fields(os.Getenv(key)); len(fields) > 0 {
			return fields
		}
	}
	return nil
}

func (o *terminalOpener) OpenFile(ctx context.Context, path string) error {
	if len(o.editor) == 0 {
		_, err := fmt.Fprintln(o.out, path)
		return err
	}
	args := append(append([]string{}, o.editor[1:]...), path)
	// #nosec G204 -- the editor comes from the user's environment
	c := exec.CommandContext(ctx, o.editor[0], args...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", o.editor[0], err)
	}
	return nil
}

func (o *terminalOpener) OpenDiff(ctx context.Context, repo string, view diff.View) error {
	text, err := diff.Render(ctx, o.src, repo, view.Context, o.contextLines)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.out, o.renderer.Diff(text))
	return err
}
