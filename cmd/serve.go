package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/nguyenvanduocit/sitetrans/pkg/site"
	"github.com/nguyenvanduocit/sitetrans/pkg/util"
)

var Serve = &cobra.Command{
	Use:     "serve [sitePath]",
	Short:   "serve a translated site snapshot for review",
	Example: "sitetrans serve path/to/site",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("sitePath is required")
		}
		return site.ValidateRoot(args[0])
	},
	RunE: runServe,
}

func init() {
	Serve.Flags().StringP("port", "p", "3000", "port to serve the site on")
}

type TranslateRequest struct {
	FilePath           string `json:"file_path"`
	TranslationID      string `json:"translation_id"`
	TranslationContent string `json:"translation_content"`
}

func runServe(cmd *cobra.Command, args []string) error {
	root := args[0]

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Get("/api/pages", func(c *fiber.Ctx) error {
		pages, err := site.Discover(root)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		rel := make([]string, 0, len(pages))
		for _, page := range pages {
			r, err := filepath.Rel(root, page)
			if err != nil {
				continue
			}
			rel = append(rel, filepath.ToSlash(r))
		}
		return c.JSON(fiber.Map{"pages": rel})
	})

	// Manual corrections from the review UI land back in the page file.
	app.Patch("/api/translate", func(c *fiber.Ctx) error {
		var req TranslateRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}

		filePath := filepath.Join(root, filepath.FromSlash(req.FilePath))
		if !strings.HasPrefix(filepath.Clean(filePath), filepath.Clean(root)) {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid file path"})
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to read file"})
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to parse HTML"})
		}

		updated := false
		doc.Find("[" + util.TranslationIdKey + "]").Each(func(i int, s *goquery.Selection) {
			if id, exists := s.Attr(util.TranslationIdKey); exists && id == req.TranslationID {
				s.SetHtml(req.TranslationContent)
				updated = true
			}
		})

		if !updated {
			return c.Status(404).JSON(fiber.Map{"error": "Translation ID not found"})
		}

		html, err := doc.Html()
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to generate HTML"})
		}

		if err := os.WriteFile(filePath, []byte(html), 0644); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to write file"})
		}

		return c.JSON(fiber.Map{"message": "Translation updated successfully"})
	})

	app.Static("/", root, fiber.Static{
		Browse: true,
	})

	port := cmd.Flag("port").Value.String()
	slog.Info("- http://localhost:" + port + "/")
	slog.Info("- http://localhost:" + port + "/api/pages")

	return app.Listen(net.JoinHostPort("", port))
}
