package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/nguyenvanduocit/sitetrans/pkg/site"
	"github.com/nguyenvanduocit/sitetrans/pkg/util"
)

var blacklist = []string{
	"math",
	"figure",
	"pre",
	"code",
	"head",
	"script",
	"style",
	"template",
	"noscript",
	"svg",
}

// Mark stamps translatable content nodes with a stable identifier so the
// translate command can find them and skip what is already done.
var Mark = &cobra.Command{
	Use:   "mark [sitePath]",
	Short: "Mark translatable content in site pages",
	Args:  cobra.ExactArgs(1),
	RunE:  markContent,
}

func init() {
	Mark.Flags().Int("workers", runtime.NumCPU(), "Number of worker goroutines")
}

func markContent(cmd *cobra.Command, args []string) error {
	root := args[0]

	pages, err := site.Discover(root)
	if err != nil {
		return fmt.Errorf("discovering pages: %w", err)
	}

	workers, _ := cmd.Flags().GetInt("workers")

	return site.Process(cmd.Context(), pages, workers, func(_ context.Context, path string) error {
		return markPageFile(path)
	})
}

func markPageFile(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening file %s: %w", filePath, err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing HTML in file %s: %w", filePath, err)
	}

	markNode(doc)

	f, err = os.Create(filePath)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", filePath, err)
	}
	defer f.Close()

	if err := html.Render(f, doc); err != nil {
		return fmt.Errorf("rendering HTML to file %s: %w", filePath, err)
	}

	return nil
}

func markNode(n *html.Node) {
	if n.Type == html.ElementNode {
		// Skip if already marked
		for _, attr := range n.Attr {
			if attr.Key == util.ContentIdKey {
				return
			}
		}

		// Skip if blacklisted
		for _, tag := range blacklist {
			if n.Data == tag {
				return
			}
		}

		if !isContainer(n) {
			content := extractTextContent(n)
			if content != "" {
				n.Attr = append(n.Attr, html.Attribute{
					Key: util.ContentIdKey,
					Val: util.GenerateContentID([]byte(content)),
				})
				return
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		markNode(c)
	}
}

// isContainer reports whether a node only holds other elements. Those are
// skipped so the marker lands on the deepest node that carries text.
func isContainer(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}

	hasElementChild := false
	hasTextContent := false

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			hasElementChild = true
		} else if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			hasTextContent = true
		}
	}

	return hasElementChild && !hasTextContent
}

func extractTextContent(n *html.Node) string {
	var text string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text += c.Data
		} else if c.Type == html.ElementNode {
			text += extractTextContent(c)
		}
	}
	return strings.TrimSpace(text)
}
