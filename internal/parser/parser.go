package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"report-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
)

// OCR recovers text from scanned PDF pages.
type OCR interface {
	Available() bool
	PageText(ctx context.Context, path string, page int) (string, error)
}

// Extractor reads documents into per-page text. A page is the natural
// unit of the format: a PDF page, a slide, a sheet, or the whole file.
type Extractor struct {
	ocr        OCR
	ocrEnabled bool
}

func NewExtractor(ocr OCR, ocrEnabled bool) *Extractor {
	return &Extractor{ocr: ocr, ocrEnabled: ocrEnabled}
}

var supportedExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".pptx": true,
	".xlsx": true,
	".ods":  true,
	".txt":  true,
	".md":   true,
}

// SupportedExt reports whether files named like name can be extracted.
func SupportedExt(name string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(name))]
}

// Extract returns the text of the document at path, one Page per unit,
// with a Warning for every page that degraded. Page failures never abort
// the document; only failing to open it does. source is the display name
// carried into page metadata, path the on-disk location.
func (e *Extractor) Extract(ctx context.Context, source, path string) ([]models.Page, []models.Warning, error) {
	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".pdf":
		return e.extractPDF(ctx, source, path)
	case ".docx":
		return extractDOCX(source, path)
	case ".pptx":
		return extractPPTX(source, path)
	case ".xlsx":
		return extractXLSX(source, path)
	case ".ods":
		return extractODS(source, path)
	case ".txt":
		return extractText(source, path)
	case ".md":
		return extractMarkdown(source, path)
	default:
		return nil, nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, source, path string) ([]models.Page, []models.Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, nil, fmt.Errorf("open pdf %s: %w", source, err)
	}

	var pages []models.Page
	var warnings []models.Warning
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		page := models.Page{Source: source, PageNumber: i}
		text, err := pageText(reader, i)
		if err != nil {
			warnings = append(warnings, models.Warning{
				Source:     source,
				PageNumber: i,
				Reason:     fmt.Sprintf("text extraction failed: %v", err),
			})
		} else {
			page.Text = text
		}
		if strings.TrimSpace(page.Text) == "" {
			if text, warn := e.ocrPage(ctx, source, path, i); warn != nil {
				warnings = append(warnings, *warn)
			} else {
				page.Text = text
				page.FromOCR = true
			}
		}
		pages = append(pages, page)
	}
	return pages, warnings, nil
}

// pageText reads one page; malformed content streams panic inside the
// pdf library, so recover them into errors.
func pageText(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", num, r)
		}
	}()
	page := reader.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d missing", num)
	}
	return page.GetPlainText(nil)
}

func (e *Extractor) ocrPage(ctx context.Context, source, path string, page int) (string, *models.Warning) {
	if !e.ocrEnabled {
		return "", &models.Warning{Source: source, PageNumber: page, Reason: "page has no extractable text, ocr disabled"}
	}
	if e.ocr == nil || !e.ocr.Available() {
		return "", &models.Warning{Source: source, PageNumber: page, Reason: "page has no extractable text, ocr tools not installed"}
	}
	text, err := e.ocr.PageText(ctx, path, page)
	if err != nil {
		return "", &models.Warning{Source: source, PageNumber: page, Reason: fmt.Sprintf("ocr failed: %v", err)}
	}
	if strings.TrimSpace(text) == "" {
		return "", &models.Warning{Source: source, PageNumber: page, Reason: "page yielded no text after ocr"}
	}
	return text, nil
}

func extractDOCX(source, path string) ([]models.Page, []models.Warning, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	page := models.Page{
		Source:     source,
		PageNumber: 1, // DOCX has no page numbers
		Text:       paragraphText(content, "w:p", "w:t"),
	}
	return []models.Page{page}, nil, nil
}

func extractPPTX(source, path string) ([]models.Page, []models.Warning, error) {
	f, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var pages []models.Page
	var warnings []models.Warning
	for _, file := range f.File {
		num, ok := slideNumber(file.Name)
		if !ok {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			warnings = append(warnings, models.Warning{Source: source, PageNumber: num, Reason: fmt.Sprintf("slide unreadable: %v", err)})
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			warnings = append(warnings, models.Warning{Source: source, PageNumber: num, Reason: fmt.Sprintf("slide unreadable: %v", err)})
			continue
		}
		pages = append(pages, models.Page{
			Source:     source,
			PageNumber: num, // slide number stands in for the page
			Text:       paragraphText(string(data), "a:p", "a:t"),
		})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, warnings, nil
}

// slideNumber parses N out of ppt/slides/slideN.xml.
func slideNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
		return 0, false
	}
	num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
	if err != nil {
		return 0, false
	}
	return num, true
}

func extractXLSX(source, path string) ([]models.Page, []models.Warning, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}

	var pages []models.Page
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{
			Source:     source,
			PageNumber: sheetNum + 1, // sheet position stands in for the page
			Text:       text.String(),
		})
	}
	return pages, nil, nil
}

func extractODS(source, path string) ([]models.Page, []models.Warning, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var pages []models.Page
	var warnings []models.Warning
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			warnings = append(warnings, models.Warning{Source: source, PageNumber: sheetNum + 1, Reason: fmt.Sprintf("sheet %s unreadable: %v", sheetName, err)})
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{
			Source:     source,
			PageNumber: sheetNum + 1,
			Text:       text.String(),
		})
	}
	return pages, warnings, nil
}

func extractText(source, path string) ([]models.Page, []models.Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	page := models.Page{
		Source:     source,
		PageNumber: 1, // TXT has no pages
		Text:       string(data),
	}
	return []models.Page{page}, nil, nil
}

func extractMarkdown(source, path string) ([]models.Page, []models.Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	text, err := markdownText(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse markdown %s: %w", source, err)
	}
	page := models.Page{
		Source:     source,
		PageNumber: 1, // Markdown has no pages
		Text:       text,
	}
	return []models.Page{page}, nil, nil
}

// markdownText walks the goldmark AST and keeps only the visible text,
// one block element per line.
func markdownText(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(gmtext.NewReader(src))

	var lines []string
	var cur strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch t := n.(type) {
		case *ast.Text:
			if entering {
				cur.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.AutoLink:
			if entering {
				cur.Write(t.URL(src))
			}
		case *ast.FencedCodeBlock:
			if entering {
				for i := 0; i < t.Lines().Len(); i++ {
					seg := t.Lines().At(i)
					cur.Write(seg.Value(src))
				}
			}
		}
		// every closed block element becomes one line
		if !entering && n.Type() == ast.TypeBlock {
			if line := strings.TrimSpace(cur.String()); line != "" {
				lines = append(lines, line)
			}
			cur.Reset()
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// paragraphText flattens Office XML: visible text lives in leaf tags
// (w:t for docx, a:t for pptx), paragraphs in paraTag.
func paragraphText(xmlContent, paraTag, textTag string) string {
	var lines []string
	for _, para := range strings.Split(xmlContent, "</"+paraTag+">") {
		if line := strings.TrimSpace(extractTagText(para, textTag)); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// extractTagText concatenates the bodies of every <tag ...>...</tag> pair.
func extractTagText(xmlContent, tag string) string {
	var text strings.Builder
	open := "<" + tag
	closing := "</" + tag + ">"
	rest := xmlContent
	for {
		i := strings.Index(rest, open)
		if i < 0 {
			break
		}
		rest = rest[i+len(open):]
		if rest == "" {
			break
		}
		// skip longer tag names sharing the prefix (w:tab, w:tbl)
		if c := rest[0]; c != '>' && c != ' ' && c != '/' {
			continue
		}
		j := strings.Index(rest, ">")
		if j < 0 {
			break
		}
		if j > 0 && rest[j-1] == '/' {
			// self-closing leaf, no text
			rest = rest[j+1:]
			continue
		}
		rest = rest[j+1:]
		k := strings.Index(rest, closing)
		if k < 0 {
			break
		}
		text.WriteString(rest[:k] + " ")
		rest = rest[k+len(closing):]
	}
	return text.String()
}
