package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nguyenvanduocit/sitetrans/pkg/batch"
	"github.com/nguyenvanduocit/sitetrans/pkg/cache"
	"github.com/nguyenvanduocit/sitetrans/pkg/dispatch"
	"github.com/nguyenvanduocit/sitetrans/pkg/guideline"
	"github.com/nguyenvanduocit/sitetrans/pkg/queue"
	"github.com/nguyenvanduocit/sitetrans/pkg/site"
	"github.com/nguyenvanduocit/sitetrans/pkg/transport"
	"github.com/nguyenvanduocit/sitetrans/pkg/util"
)

var Translate = &cobra.Command{
	Use:   "translate [sitePath]",
	Short: "Translate the marked content of a site snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranslate,
}

func init() {
	Translate.Flags().String("source", "English", "source language")
	Translate.Flags().String("target", "Vietnamese", "target language")
	Translate.Flags().String("model", "", "model to use, empty for the default")
	Translate.Flags().Int("group-tokens", batch.DefaultMaxGroupTokens, "estimated token ceiling per batch")
	Translate.Flags().Int("concurrency", 5, "maximum batches in flight")
	Translate.Flags().Int("retries", 1, "extra attempts for a failed batch")
	Translate.Flags().Duration("window", 50*time.Millisecond, "accumulation window before dispatch")
	Translate.Flags().Int("min-batch", 2, "minimum requests worth batching")
	Translate.Flags().Int("workers", runtime.NumCPU(), "page worker goroutines")
	Translate.Flags().Bool("guidelines", false, "generate translation guidelines from the site title first")

	viper.SetEnvPrefix("SITETRANS")
	viper.AutomaticEnv()
	viper.BindPFlags(Translate.Flags())
}

func runTranslate(cmd *cobra.Command, args []string) error {
	root := args[0]
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pages, err := site.Discover(root)
	if err != nil {
		return fmt.Errorf("discovering pages: %w", err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages found under %s, did you run mark first?", root)
	}

	siteTitle := readSiteTitle(pages[0])

	guidelines := ""
	if viper.GetBool("guidelines") && siteTitle != "" {
		guidelines, err = generateGuidelines(ctx, siteTitle)
		if err != nil {
			slog.Warn("guideline generation failed, continuing without", "error", err)
		}
	}

	anthropicTransport, err := transport.NewAnthropic(&transport.Config{
		Model:      viper.GetString("model"),
		SourceLang: viper.GetString("source"),
		TargetLang: viper.GetString("target"),
		Guidelines: guidelines,
	})
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	translationCache, err := cache.New(nil)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	defer translationCache.Close()

	scheduler := dispatch.New(anthropicTransport, translationCache, dispatch.Config{
		MaxInFlight:   viper.GetInt("concurrency"),
		RetryAttempts: viper.GetInt("retries"),
		Origin:        root,
	})

	q := queue.New(scheduler, translationCache, queue.Config{
		Window:         viper.GetDuration("window"),
		MinBatchSize:   viper.GetInt("min-batch"),
		MaxGroupTokens: viper.GetInt("group-tokens"),
	})
	defer q.Close()

	// Interrupt rejects everything still pending; pages already written
	// stay written.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("interrupt received, initiating graceful shutdown")
		q.Clear()
		cancel()
	}()

	workers, _ := cmd.Flags().GetInt("workers")
	err = site.Process(ctx, pages, workers, func(ctx context.Context, path string) error {
		return translatePage(ctx, q, translationCache, path, siteTitle)
	})

	q.Flush()
	return err
}

func readSiteTitle(pagePath string) string {
	f, err := os.Open(pagePath)
	if err != nil {
		return ""
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return ""
	}
	return doc.Find("title").First().Text()
}

func generateGuidelines(ctx context.Context, siteTitle string) (string, error) {
	gemini, err := guideline.NewGemini(ctx)
	if err != nil {
		return "", err
	}
	return gemini.Generate(ctx, viper.GetString("source"), viper.GetString("target"), siteTitle)
}

func translatePage(ctx context.Context, q *queue.Queue, translationCache *cache.Cache, pagePath, siteTitle string) error {
	f, err := os.Open(pagePath)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(f)
	f.Close()
	if err != nil {
		return err
	}

	ensureUTF8Charset(doc)

	selector := fmt.Sprintf("[%s]:not([%s])", util.ContentIdKey, util.TranslationByIdKey)
	elements := doc.Find(selector)
	if elements.Length() == 0 {
		return nil
	}

	pageContext := doc.Find("title").First().Text()
	if pageContext == "" {
		pageContext = siteTitle
	}

	// Enqueue every fragment first so they land in shared batches, then
	// wait for the futures in document order.
	type pendingNode struct {
		el     *goquery.Selection
		source string
		future *batch.Request
	}
	var nodes []pendingNode

	elements.Each(func(_ int, el *goquery.Selection) {
		source, err := el.Html()
		if err != nil || len(source) <= 1 {
			return
		}
		nodes = append(nodes, pendingNode{
			el:     el,
			source: source,
			future: q.Enqueue(source, pageContext),
		})
	})

	modified := false
	for i, node := range nodes {
		translated, err := node.future.Wait(ctx)
		if err != nil {
			slog.Warn("fragment not translated", "page", pagePath, "index", i, "error", err)
			continue
		}

		if translated == node.source {
			node.el.RemoveAttr(util.ContentIdKey)
			modified = true
			continue
		}

		if err := insertTranslation(node.el, translated); err != nil {
			slog.Warn("failed to insert translation", "page", pagePath, "error", err)
			continue
		}
		translationCache.SetRendered(node.source, translated)
		modified = true
	}

	if !modified {
		return nil
	}
	return writePage(pagePath, doc)
}

func ensureUTF8Charset(doc *goquery.Document) {
	charset, _ := doc.Find("meta[charset]").Attr("charset")
	if charset != "utf-8" {
		doc.Find("head").AppendHtml(`<meta charset="utf-8">`)
	}
}

// insertTranslation clones the source node, fills it with the translated
// content and places it right after the original, linking the two through
// the translation id.
func insertTranslation(el *goquery.Selection, translated string) error {
	translationID := util.GenerateContentID([]byte(translated))

	translatedElement := el.Clone()
	translatedElement.RemoveAttr(util.ContentIdKey)
	translatedElement.SetHtml(translated)
	translatedElement.SetAttr(util.TranslationIdKey, translationID)
	el.SetAttr(util.TranslationByIdKey, translationID)
	el.AfterSelection(translatedElement)

	return nil
}

func writePage(pagePath string, doc *goquery.Document) error {
	file, err := os.Create(pagePath)
	if err != nil {
		return err
	}
	defer file.Close()

	html, err := doc.Html()
	if err != nil {
		return err
	}

	_, err = file.WriteString(html)
	return err
}
