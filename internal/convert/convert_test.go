// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeExec implements container.Executor.
type fakeExec struct {
	hasBin bool
	out    string
	err    error

	gotName string
	gotArgs []string
	gotIn   string
}

func (f *fakeExec) LookPath(file string) (string, error) {
	if f.hasBin {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found")
}

func (f *fakeExec) RunSilent(context.Context, string, ...string) error { return nil }

func (f *fakeExec) RunPiped(_ context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	f.gotName, f.gotArgs = name, args
	b, _ := io.ReadAll(stdin)
	f.gotIn = string(b)
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(stdout, f.out)
	return err
}

// fakeRuntime implements container.Runtime.
type fakeRuntime struct {
	imageOK bool
	out     string
	image   string
	args    []string
}

func (r *fakeRuntime) Name() string                    { return "docker" }
func (r *fakeRuntime) Available(context.Context) bool { return true }
func (r *fakeRuntime) ImageExists(_ context.Context, image string) error {
	if !r.imageOK {
		return errors.New("no such image " + image)
	}
	return nil
}
func (r *fakeRuntime) Run(_ context.Context, image string, args []string, _ io.Reader, stdout io.Writer) error {
	r.image, r.args = image, args
	_, err := io.WriteString(stdout, r.out)
	return err
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(p, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSplitPages(t *testing.T) {
	doc := splitPages("first page\fsecond\x01page\f\f")
	if len(doc.Pages) != 3 {
		t.Fatalf("pages = %d, want 3: %q", len(doc.Pages), doc.Pages)
	}
	if doc.Pages[1] != "second page" {
		t.Errorf("page 2 = %q", doc.Pages[1])
	}
	if doc.Pages[2] != "" {
		t.Errorf("page 3 = %q, want empty", doc.Pages[2])
	}
}

func TestSanitize(t *testing.T) {
	in := "a\x00b\tc\nd\re\x1f" + string([]byte{0xed, 0xa0, 0x80}) + "f"
	got := Sanitize(in)
	if strings.ContainsAny(got, "\x00\x1f") {
		t.Errorf("control chars kept: %q", got)
	}
	if !strings.Contains(got, "\t") || !strings.Contains(got, "\n") || !strings.Contains(got, "\r") {
		t.Errorf("whitespace controls dropped: %q", got)
	}
	if !strings.HasPrefix(got, "a b") || !strings.HasSuffix(got, "f") {
		t.Errorf("got %q", got)
	}
}

func TestDocumentEmpty(t *testing.T) {
	if !(Document{Pages: []string{" ", "\n"}}).Empty() {
		t.Error("whitespace document should be empty")
	}
	if (Document{Pages: []string{"", "x"}}).Empty() {
		t.Error("document with text should not be empty")
	}
}

func TestPdftotextConvert(t *testing.T) {
	ex := &fakeExec{hasBin: true, out: "one\ftwo\f"}
	c, err := NewPdftotext(ex)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := c.Convert(context.Background(), writePDF(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Pages) != 2 || doc.Pages[0] != "one" || doc.Pages[1] != "two" {
		t.Errorf("pages = %q", doc.Pages)
	}
	if ex.gotName != "pdftotext" || ex.gotIn != "%PDF-1.4 fake" {
		t.Errorf("ran %s with stdin %q", ex.gotName, ex.gotIn)
	}
	if got := strings.Join(ex.gotArgs, " "); got != "-layout -enc UTF-8 - -" {
		t.Errorf("args = %q", got)
	}
}

func TestPdftotextMissingBinary(t *testing.T) {
	if _, err := NewPdftotext(&fakeExec{}); err == nil {
		t.Fatal("expected error when pdftotext is missing")
	}
}

func TestPdftotextErrors(t *testing.T) {
	c, _ := NewPdftotext(&fakeExec{hasBin: true, err: errors.New("exit status 1")})
	if _, err := c.Convert(context.Background(), writePDF(t)); err == nil {
		t.Error("expected error from failing pdftotext")
	}
	if _, err := c.Convert(context.Background(), filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestContainerConverter(t *testing.T) {
	rt := &fakeRuntime{imageOK: true, out: "p1\fp2\f"}
	c, err := NewContainerConverter(context.Background(), rt, "")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := c.Convert(context.Background(), writePDF(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Pages) != 2 {
		t.Errorf("pages = %q", doc.Pages)
	}
	if rt.image != DefaultImage || rt.args[0] != "pdftotext" {
		t.Errorf("ran %s %v", rt.image, rt.args)
	}
}

func TestContainerConverterMissingImage(t *testing.T) {
	_, err := NewContainerConverter(context.Background(), &fakeRuntime{}, "custom:1")
	if err == nil || !strings.Contains(err.Error(), "custom:1") {
		t.Fatalf("err = %v", err)
	}
}
