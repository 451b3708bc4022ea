// Package site models a website snapshot: a directory of HTML pages,
// optionally described by a sitemap.xml at its root.
package site

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const sitemapFile = "sitemap.xml"

// Sitemap is the subset of the sitemap protocol the snapshot needs.
type Sitemap struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []URL    `xml:"url"`
}

type URL struct {
	Loc string `xml:"loc"`
}

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) error {
	fi, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("site path %s does not exist", root)
		}
		return fmt.Errorf("checking site path: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("site path %s is not a directory", root)
	}
	return nil
}

// Discover lists the translatable pages of the snapshot. A sitemap.xml at
// the root is authoritative when present; otherwise the whole tree is
// walked for HTML files. Non-content pages are excluded either way, and
// paths come back in a stable order relative to the root.
func Discover(root string) ([]string, error) {
	if err := ValidateRoot(root); err != nil {
		return nil, err
	}

	pages, err := fromSitemap(root)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if len(pages) > 0 {
		return pages, nil
	}

	return fromWalk(root)
}

func fromSitemap(root string) ([]string, error) {
	content, err := os.ReadFile(filepath.Join(root, sitemapFile))
	if err != nil {
		return nil, err
	}

	var sitemap Sitemap
	if err := xml.Unmarshal(content, &sitemap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", sitemapFile, err)
	}

	var pages []string
	for _, u := range sitemap.URLs {
		rel, err := localPath(u.Loc)
		if err != nil || rel == "" {
			continue
		}
		if ShouldExcludePage(rel) {
			continue
		}
		full := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := os.Stat(full); err != nil {
			continue
		}
		pages = append(pages, full)
	}
	return pages, nil
}

// localPath maps a sitemap loc to a snapshot-relative file path. A loc
// ending in a slash points at that directory's index.html.
func localPath(loc string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(loc))
	if err != nil {
		return "", err
	}

	p := strings.TrimPrefix(parsed.Path, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}
	return p, nil
}

func fromWalk(root string) ([]string, error) {
	var pages []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !isHTMLFile(path) {
			return nil
		}
		if ShouldExcludePage(path) {
			return nil
		}
		pages = append(pages, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking site: %w", err)
	}

	return pages, nil
}

func isHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

var excludeRegex = regexp.MustCompile(`(?i)(privacy|terms[-_\s]*of[-_\s]*(use|service)|cookie[-_\s]*policy|legal|imprint|impressum|sitemap|404|robots|login|signin|signup|register|checkout|cart\b|account|admin|search[-_\s]*results?|\btags?\b|archive|feed\b|rss)`)

// ShouldExcludePage reports whether a page is boilerplate not worth
// sending to the model.
func ShouldExcludePage(name string) bool {
	return excludeRegex.MatchString(filepath.Base(name))
}
