package template

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"llmhub/internal/domain"
)

const instructBody = `{% for m in messages %}{% if m.role == "system" %}<<SYS>>{{ m.content }}<</SYS>>
{% elif m.role == "user" %}[INST] {{ m.content }} [/INST]
{% else %}{{ m.content }}{% endif %}{% endfor %}`

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
}

// =============================================================================
// Variant resolution
// =============================================================================

func TestParseVariant_WhenKnownDiscriminator_ShouldResolve(t *testing.T) {
	cases := map[string]Variant{
		"instruct":          VariantInstruct,
		"ContextInstruct":   VariantInstruct,
		"standard":          VariantStandard,
		" ContextStandard ": VariantStandard,
	}
	for in, want := range cases {
		got, err := ParseVariant(in)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestParseVariant_WhenUnknown_ShouldFailClosed(t *testing.T) {
	_, err := ParseVariant("ContextMagic")
	if !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("want ErrUnknownVariant, got %v", err)
	}
}

// =============================================================================
// Parse / render
// =============================================================================

func TestParse_WhenInstruct_ShouldRenderMessageLoop(t *testing.T) {
	f, err := Parse("llama.tmpl", []byte("ContextInstruct\n"+instructBody))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := f.RenderMessages([]domain.Turn{
		{Role: domain.RoleSystem, Content: "be nice"},
		{Role: domain.RoleUser, Content: "a < b & \"c\""},
		{Role: domain.RoleAssistant, Content: ""},
	})
	if err != nil {
		t.Fatalf("RenderMessages: %v", err)
	}
	want := "<<SYS>>be nice<</SYS>>\n[INST] a < b & \"c\" [/INST]\n"
	if out != want {
		t.Errorf("render:\nwant %q\ngot  %q", want, out)
	}
}

func TestParse_WhenInstructBodyInvalid_ShouldReturnError(t *testing.T) {
	_, err := Parse("bad", []byte("instruct\n{% for m in %}"))
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("want ErrInvalidTemplate, got %v", err)
	}
}

func TestParse_WhenStandard_ShouldKeepBodyVerbatim(t *testing.T) {
	f, err := Parse("chat", []byte("standard\r\n{system}\n{history}\nHuman: {input}\nAI:"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Variant != VariantStandard {
		t.Errorf("variant: got %q", f.Variant)
	}
	if f.Body != "{system}\n{history}\nHuman: {input}\nAI:" {
		t.Errorf("body: got %q", f.Body)
	}
	if _, err := f.RenderMessages(nil); err == nil {
		t.Error("expected error rendering messages with a standard body")
	}
}

func TestSubstitute_ShouldReplaceOnlyKnownPlaceholders(t *testing.T) {
	got := Substitute("{system} | {input} | {other}", map[string]string{"system": "S", "input": "I"})
	if got != "S | I | {other}" {
		t.Errorf("got %q", got)
	}
}

// =============================================================================
// Loader
// =============================================================================

func TestLoader_Load_WhenMissing_ShouldReturnTemplateNotFound(t *testing.T) {
	l := NewLoader(t.TempDir())
	_, err := l.Load("nope.tmpl")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("want ErrTemplateNotFound, got %v", err)
	}
}

func TestLoader_Load_WhenPathEscapesDir_ShouldReturnTemplateNotFound(t *testing.T) {
	l := NewLoader(t.TempDir())
	for _, name := range []string{"../secret", "/etc/passwd", ""} {
		if _, err := l.Load(name); !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("Load(%q): want ErrTemplateNotFound, got %v", name, err)
		}
	}
}

func TestLoader_Variant_ShouldReadFirstLine(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "chat.tmpl", "ContextStandard\n{system}")
	v, err := NewLoader(dir).Variant("chat.tmpl")
	if err != nil || v != VariantStandard {
		t.Errorf("Variant: got %q, %v", v, err)
	}
}

// =============================================================================
// Watcher
// =============================================================================

func TestWatcher_WhenFileWritten_ShouldReportName(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 8)
	w := NewWatcher(dir, func(name string) { changed <- name }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		writeTemplate(t, dir, "live.tmpl", "standard\n{system}")
		select {
		case name := <-changed:
			if name != "live.tmpl" {
				t.Errorf("want live.tmpl, got %q", name)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}
