package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	apperrors "github.com/studybuddy/tutor-backend/internal/errors"
	"github.com/studybuddy/tutor-backend/internal/models"
	"github.com/studybuddy/tutor-backend/internal/worksheet"
)

// 工作表文件格式
const (
	FormatDOCX = "docx"
	FormatPDF  = "pdf"
)

const defaultQuestionCount = 5

// WorksheetRequest 工作表请求
type WorksheetRequest struct {
	Topic         string
	Difficulty    string
	QuestionCount int
	YearLevel     int
	Format        string
}

// WorksheetPreview 预览结果
type WorksheetPreview struct {
	HTML  string `json:"html"`
	LaTeX string `json:"latex"`
}

// WorksheetFile 下载文件
type WorksheetFile struct {
	Content     []byte
	ContentType string
	Filename    string
}

// WorksheetService 工作表生成
type WorksheetService struct {
	generator ReplyGenerator
	enabled   bool
	maxTokens int
	logger    *zap.Logger
}

// NewWorksheetService 创建工作表服务，生成器未配置时使用示例题目
func NewWorksheetService(generator ReplyGenerator, maxTokens int, logger *zap.Logger) *WorksheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	return &WorksheetService{
		generator: generator,
		enabled:   generator != nil && generator.Configured(),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Latex 生成 LaTeX 题目列表
func (s *WorksheetService) Latex(ctx context.Context, req WorksheetRequest) (string, error) {
	req = normalizeWorksheet(req)
	if !s.enabled {
		return SampleWorksheet(req.QuestionCount), nil
	}

	reply, err := s.generator.Generate(ctx, GenerationRequest{
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: worksheetPrompt(req)}},
		MaxTokens: s.maxTokens,
		Topic:     req.Topic,
	})
	if err != nil {
		s.logger.Warn("Worksheet generation failed", zap.String("topic", req.Topic), zap.Error(err))
		return "", apperrors.NewExternalError(apperrors.ErrCodeGenerationFailed, "Failed to generate worksheet").WithCause(err)
	}

	latex := strings.TrimSpace(reply.Text)
	if len(worksheet.SplitItems(latex)) == 0 {
		return "", apperrors.NewExternalError(apperrors.ErrCodeGenerationFailed, "Generated worksheet contained no questions")
	}
	return latex, nil
}

// Preview 生成 HTML 预览
func (s *WorksheetService) Preview(ctx context.Context, req WorksheetRequest) (*WorksheetPreview, error) {
	latex, err := s.Latex(ctx, req)
	if err != nil {
		return nil, err
	}
	return &WorksheetPreview{
		HTML:  worksheet.PreviewHTML(worksheet.ToHTML(latex)),
		LaTeX: latex,
	}, nil
}

// File 生成 DOCX 或 PDF 文件
func (s *WorksheetService) File(ctx context.Context, req WorksheetRequest) (*WorksheetFile, error) {
	req = normalizeWorksheet(req)
	if req.Format != FormatDOCX && req.Format != FormatPDF {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeUnsupportedFormat, "Unsupported format").
			WithDetails(map[string]interface{}{"format": req.Format, "supported": []string{FormatDOCX, FormatPDF}})
	}

	latex, err := s.Latex(ctx, req)
	if err != nil {
		return nil, err
	}
	doc := worksheet.Document{
		Title:     WorksheetTitle(req),
		Questions: worksheet.ToPlainText(latex),
	}

	var buf bytes.Buffer
	file := &WorksheetFile{Filename: "worksheet." + req.Format}
	switch req.Format {
	case FormatDOCX:
		err = worksheet.WriteDOCX(&buf, doc)
		file.ContentType = worksheet.DOCXContentType
	case FormatPDF:
		err = worksheet.WritePDF(&buf, doc)
		file.ContentType = worksheet.PDFContentType
	}
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "Failed to generate file").WithCause(err)
	}
	file.Content = buf.Bytes()
	return file, nil
}

// Enabled 是否使用模型生成
func (s *WorksheetService) Enabled() bool {
	return s.enabled
}

// WorksheetTitle 工作表标题，如 "Year 7 Algebra - Easy"
func WorksheetTitle(req WorksheetRequest) string {
	req = normalizeWorksheet(req)
	return fmt.Sprintf("Year %d %s - %s", req.YearLevel, req.Topic, capitalize(req.Difficulty))
}

// SampleWorksheet 未配置生成器时的示例题目
func SampleWorksheet(count int) string {
	items := make([]string, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, fmt.Sprintf(`\item Solve for $x$: $2x + %d = %d$`, i+3, i+13))
	}
	return "\\begin{enumerate}\n" + strings.Join(items, "\n") + "\n\\end{enumerate}"
}

func normalizeWorksheet(req WorksheetRequest) WorksheetRequest {
	if strings.TrimSpace(req.Topic) == "" {
		req.Topic = models.DefaultTopic
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}
	if req.QuestionCount <= 0 {
		req.QuestionCount = defaultQuestionCount
	}
	if req.YearLevel <= 0 {
		req.YearLevel = 7
	}
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if req.Format == "" {
		req.Format = FormatDOCX
	}
	return req
}

func worksheetPrompt(req WorksheetRequest) string {
	return fmt.Sprintf(`Create %d %s %s questions for Year %d.
Return ONLY valid LaTeX using enumerate environment like:

\begin{enumerate}
  \item Solve for $x$: $2x + 5 = 15$
  \item Find the area of a rectangle with length $8$ cm and width $5$ cm
  \item Simplify: $\frac{3}{4} + \frac{1}{8}$
  \item Calculate: $\sqrt{144} + 3^2$
\end{enumerate}

Rules:
- Use proper LaTeX math notation with $ for inline math
- Keep questions curriculum-appropriate for Year %d
- Use \item for each question
- No answers, just questions
- Use proper LaTeX: \frac{a}{b}, \sqrt{x}, x^2, \cdot for multiplication`,
		req.QuestionCount, req.Difficulty, req.Topic, req.YearLevel, req.YearLevel)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
