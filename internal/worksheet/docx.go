package worksheet

import (
	"fmt"
	"io"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/measurement"
	"github.com/unidoc/unioffice/schema/soo/wml"
)

// DOCXContentType Word 文档的 MIME 类型
const DOCXContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// WriteDOCX 生成 Word 工作表
func WriteDOCX(w io.Writer, d Document) error {
	doc := document.New()
	defer doc.Close()

	title := doc.AddParagraph()
	title.SetStyle("Heading2")
	title.Properties().SetAlignment(wml.ST_JcCenter)
	title.AddRun().AddText(d.Title)

	doc.AddParagraph()
	addNumbered(doc, d.Questions, 12)

	if len(d.Answers) > 0 {
		doc.AddParagraph()
		heading := doc.AddParagraph()
		heading.SetStyle("Heading3")
		heading.AddRun().AddText("Answers")
		addNumbered(doc, d.Answers, 6)
	}

	if err := doc.Save(w); err != nil {
		return fmt.Errorf("save docx: %w", err)
	}
	return nil
}

func addNumbered(doc *document.Document, lines []string, spacingAfter float64) {
	for i, line := range lines {
		p := doc.AddParagraph()
		p.Properties().Spacing().SetAfter(measurement.Distance(spacingAfter) * measurement.Point)

		num := p.AddRun()
		num.Properties().SetBold(true)
		num.AddText(fmt.Sprintf("%d. ", i+1))
		p.AddRun().AddText(line)
	}
}
