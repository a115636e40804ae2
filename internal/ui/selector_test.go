package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
)

func TestSelectorQuery(t *testing.T) {
	tests := []struct {
		name     string
		spec     SelectorSpec
		want     string
		strategy Strategy
	}{
		{"css", CSS("#title"), "#title", StrategyCSS},
		{"xpath", XPath("//button"), "//button", StrategyXPath},
		{"text", Text("button", "新增單集"), `//button[contains(normalize-space(.), "新增單集")]`, StrategyXPath},
		{"text any tag", Text("", "更多"), `//body//*[not(self::script or self::style or self::noscript)][contains(normalize-space(.), "更多")][not(*[contains(normalize-space(.), "更多")])]`, StrategyXPath},
		{"text with quote", Text("span", `say "hi"`), `//span[contains(normalize-space(.), 'say "hi"')]`, StrategyXPath},
		{"invalid", SelectorSpec{Kind: "shadow"}, "", StrategyInvalid},
		{"empty css", CSS(" "), "", StrategyInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy := tt.spec.Query()
			if got != tt.want || strategy != tt.strategy {
				t.Fatalf("Query() = (%q, %s), want (%q, %s)", got, strategy, tt.want, tt.strategy)
			}
		})
	}
}

func TestTextQueryMatchesInnermostElement(t *testing.T) {
	const page = `<html><head><script>var label = "更多";</script></head>
<body><div class="tabs"><div role="tablist"><div role="tab">封面</div><div role="tab">更<b>多</b></div></div>
<div hidden><script>window.msg = "登入失敗";</script></div></div></body></html>`
	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name string
		spec SelectorSpec
		want []string
	}{
		{"any tag picks the tab", Text("", "更多"), []string{"tab"}},
		{"script text ignored", Text("", "登入失敗"), nil},
		{"tagged spec keeps its tag", Text("div", "封面"), []string{"", "tablist", "tab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := tt.spec.Query()
			nodes, err := htmlquery.QueryAll(doc, q)
			if err != nil {
				t.Fatalf("QueryAll(%s): %v", q, err)
			}
			var roles []string
			for _, n := range nodes {
				if n.Data == "html" || n.Data == "body" {
					t.Fatalf("%s matched <%s>", q, n.Data)
				}
				roles = append(roles, htmlquery.SelectAttr(n, "role"))
			}
			if strings.Join(roles, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("%s matched roles %q, want %q", q, roles, tt.want)
			}
		})
	}
}

func TestRoleQueryIncludesImplicitElements(t *testing.T) {
	q, strategy := Role("button", "還原").Query()
	if strategy != StrategyXPath {
		t.Fatalf("strategy = %s", strategy)
	}
	for _, part := range []string{`//*[@role="button"]`, "//button", `@aria-label="還原"`} {
		if !strings.Contains(q, part) {
			t.Fatalf("role query %q missing %q", q, part)
		}
	}
}

func TestXPathLiteralMixedQuotes(t *testing.T) {
	got := xpathLiteral(`it's "x"`)
	want := `concat("it's ", '"', "x", '"')`
	if got != want {
		t.Fatalf("xpathLiteral = %s, want %s", got, want)
	}
}

func TestExpandPlaceholders(t *testing.T) {
	spec := CSS(`#daiStatus input[value="{ad_option}"]`).Expand(map[string]string{"ad_option": "inactive"})
	if spec.Value != `#daiStatus input[value="inactive"]` {
		t.Fatalf("Expand = %q", spec.Value)
	}
}

func TestDefaultCatalogCoversWorkflowKeys(t *testing.T) {
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	keys := []string{
		"login_email", "login_password", "login_submit", "restore_dialog",
		"latest_episode_title", "new_episode", "create_episode_heading",
		"audio_input", "audio_upload_trigger", "audio_upload_done",
		"title_input", "description_editor", "episode_type", "ad_pre_roll", "ad_mid_roll",
		"cover_tab", "cover_open", "cover_input", "cover_confirm",
		"publish", "publish_confirm", "publish_success", "publish_error", "save_draft",
	}
	if err := catalog.Require(keys...); err != nil {
		t.Fatal(err)
	}
	got := catalog.Get("ad_pre_roll", map[string]string{"ad_option": "inactive"})
	if got[0].Value != `#daiStatus input[type="radio"][value="inactive"]` {
		t.Fatalf("ad_pre_roll = %q", got[0].Value)
	}
}

func TestLoadCatalogOverridesPerKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	override := "publish:\n  - {kind: CSS, value: '#go'}\n"
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if got := catalog.Get("publish", nil); len(got) != 1 || got[0] != CSS("#go") {
		t.Fatalf("publish override not applied: %v", got)
	}
	if len(catalog.Get("login_email", nil)) == 0 {
		t.Fatal("defaults should survive an override file")
	}
}

func TestLoadCatalogRejectsInvalidSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	if err := os.WriteFile(path, []byte("publish:\n  - {kind: text}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for text selector without text")
	}
}
