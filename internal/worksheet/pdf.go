package worksheet

import (
	"fmt"
	"io"

	"github.com/unidoc/unipdf/v3/creator"
)

// PDFContentType PDF 的 MIME 类型
const PDFContentType = "application/pdf"

const pageMargin = 50

// WritePDF 生成 A4 PDF 工作表，答案另起一页
func WritePDF(w io.Writer, d Document) error {
	c := creator.New()
	c.SetPageSize(creator.PageSizeA4)
	c.SetPageMargins(pageMargin, pageMargin, pageMargin, pageMargin)
	c.NewPage()

	title := c.NewStyledParagraph()
	title.Append(d.Title).Style.FontSize = 18
	title.SetTextAlignment(creator.TextAlignmentCenter)
	title.SetMargins(0, 0, 0, 18)
	if err := c.Draw(title); err != nil {
		return fmt.Errorf("draw title: %w", err)
	}

	if err := drawNumbered(c, d.Questions, 8); err != nil {
		return err
	}

	if len(d.Answers) > 0 {
		c.NewPage()
		heading := c.NewStyledParagraph()
		heading.Append("Answers").Style.FontSize = 16
		heading.SetMargins(0, 0, 0, 8)
		if err := c.Draw(heading); err != nil {
			return fmt.Errorf("draw answers heading: %w", err)
		}
		if err := drawNumbered(c, d.Answers, 6); err != nil {
			return err
		}
	}

	if err := c.Write(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func drawNumbered(c *creator.Creator, lines []string, gap float64) error {
	for i, line := range lines {
		p := c.NewStyledParagraph()
		p.Append(fmt.Sprintf("%d. %s", i+1, line)).Style.FontSize = 12
		p.SetMargins(0, 0, 0, gap)
		if err := c.Draw(p); err != nil {
			return fmt.Errorf("draw line %d: %w", i+1, err)
		}
	}
	return nil
}
