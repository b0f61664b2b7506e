package site

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML metadata block at the top of a page markdown file.
type Frontmatter struct {
	Title       string   `yaml:"title"`
	Icon        string   `yaml:"icon"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// Document is a loaded markdown page: metadata plus the raw markdown body.
// Rendering to HTML happens client-side.
type Document struct {
	Page Page        `json:"page"`
	Meta Frontmatter `json:"meta"`
	Body string      `json:"body"`
}

// Library loads page documents from a content directory on disk.
type Library struct {
	Dir string
}

func NewLibrary(dir string) *Library {
	return &Library{Dir: strings.TrimSpace(dir)}
}

// Load reads the markdown document for a registered page. The frontmatter is
// optional; a file without one yields an empty Meta and the full contents as
// body.
func (l *Library) Load(name string) (Document, error) {
	page, ok := Lookup(name)
	if !ok {
		return Document{}, fmt.Errorf("unknown page: %s", name)
	}
	if l == nil || l.Dir == "" {
		return Document{Page: page}, nil
	}

	b, err := os.ReadFile(filepath.Join(l.Dir, page.Name+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return Document{Page: page}, nil
		}
		return Document{}, err
	}

	meta, body, ok := ParseFrontmatter(string(b))
	if !ok {
		return Document{Page: page, Body: string(b)}, nil
	}
	return Document{Page: page, Meta: meta, Body: body}, nil
}

// ParseFrontmatter splits contents into a YAML frontmatter block and the
// remaining body. Minimal frontmatter support: YAML between leading --- lines.
func ParseFrontmatter(contents string) (Frontmatter, string, bool) {
	r := strings.NewReader(contents)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		return Frontmatter{}, "", false
	}
	if strings.TrimSpace(sc.Text()) != "---" {
		return Frontmatter{}, "", false
	}

	var yamlLines []string
	foundEnd := false
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "---" {
			foundEnd = true
			break
		}
		yamlLines = append(yamlLines, line)
	}
	if !foundEnd {
		return Frontmatter{}, "", false
	}

	var bodyLines []string
	for sc.Scan() {
		bodyLines = append(bodyLines, sc.Text())
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(yamlLines, "\n")), &fm); err != nil {
		return Frontmatter{}, "", false
	}

	var tags []string
	seen := make(map[string]bool, len(fm.Tags))
	for _, t := range fm.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	fm.Tags = tags

	body := strings.TrimPrefix(strings.Join(bodyLines, "\n"), "\n")
	return fm, body, true
}
