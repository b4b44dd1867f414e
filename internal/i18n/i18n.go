// Package i18n translates message keys into the actor's locale. Catalogs
// are YAML files embedded under locales/<locale>/<namespace>.yaml and are
// registered into a golang.org/x/text catalog; locales are matched with
// language.Matcher so "de" or "de-AT" resolve to de-DE.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is used when the requested locale matches nothing.
const BaseLocale = "en-US"

//go:embed locales/*/*.yaml
var embedded embed.FS

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Translator resolves keys against the loaded catalogs.
type Translator struct {
	builder  *catalog.Builder
	matcher  language.Matcher
	tags     []language.Tag
	keys     map[language.Tag]map[string]bool
	printers map[language.Tag]*message.Printer
}

// New loads the embedded catalogs.
func New() (*Translator, error) {
	return LoadFS(embedded)
}

// MustNew is New for package-level initialization.
func MustNew() *Translator {
	t, err := New()
	if err != nil {
		panic(err)
	}
	return t
}

// LoadFS loads catalogs from fsys laid out as locales/<locale>/<namespace>.yaml.
func LoadFS(fsys fs.FS) (*Translator, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("i18n: glob catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("i18n: no catalog files found")
	}
	sort.Strings(paths)

	base := language.MustParse(BaseLocale)
	t := &Translator{
		builder:  catalog.NewBuilder(catalog.Fallback(base)),
		keys:     map[language.Tag]map[string]bool{},
		printers: map[language.Tag]*message.Printer{},
	}
	for _, p := range paths {
		if err := t.addFile(fsys, p); err != nil {
			return nil, err
		}
	}
	if _, ok := t.keys[base]; !ok {
		return nil, fmt.Errorf("i18n: base locale %s has no catalog", BaseLocale)
	}

	// The base locale goes first so the matcher falls back to it.
	sort.SliceStable(t.tags, func(i, j int) bool { return t.tags[i] == base && t.tags[j] != base })
	t.matcher = language.NewMatcher(t.tags)
	for _, tag := range t.tags {
		t.printers[tag] = message.NewPrinter(tag, message.Catalog(t.builder))
	}
	return t, nil
}

func (t *Translator) addFile(fsys fs.FS, p string) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return fmt.Errorf("i18n: read %s: %w", p, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("i18n: parse %s: %w", p, err)
	}
	dir := path.Base(path.Dir(p))
	if file.Locale != dir {
		return fmt.Errorf("i18n: %s declares locale %q, want %q", p, file.Locale, dir)
	}
	tag, err := language.Parse(file.Locale)
	if err != nil {
		return fmt.Errorf("i18n: %s: %w", p, err)
	}
	keys, ok := t.keys[tag]
	if !ok {
		keys = map[string]bool{}
		t.keys[tag] = keys
		t.tags = append(t.tags, tag)
	}
	for key, msg := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("i18n: %s: blank key", p)
		}
		if keys[key] {
			return fmt.Errorf("i18n: %s: duplicate key %q in %s", p, key, file.Locale)
		}
		if err := t.builder.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("i18n: %s: key %q: %w", p, key, err)
		}
		keys[key] = true
	}
	return nil
}

// Match returns the supported locale closest to locale.
func (t *Translator) Match(locale string) string {
	return t.match(locale).String()
}

func (t *Translator) match(locale string) language.Tag {
	requested, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return t.tags[0]
	}
	_, index, confidence := t.matcher.Match(requested)
	if confidence == language.No {
		return t.tags[0]
	}
	return t.tags[index]
}

// Translate formats key in the matched locale. Keys missing from the
// locale fall back to the base locale; unknown keys are returned verbatim.
func (t *Translator) Translate(locale, key string, args ...any) string {
	tag := t.match(locale)
	if !t.keys[tag][key] {
		tag = t.tags[0]
		if !t.keys[tag][key] {
			return key
		}
	}
	return t.printers[tag].Sprintf(key, args...)
}

// Locales lists the supported locales, base first.
func (t *Translator) Locales() []string {
	out := make([]string, len(t.tags))
	for i, tag := range t.tags {
		out[i] = tag.String()
	}
	return out
}
