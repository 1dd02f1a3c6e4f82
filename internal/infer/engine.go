package infer

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rvilela/acerto/internal/ledger"
	"github.com/rvilela/acerto/internal/logger"
	"github.com/rvilela/acerto/internal/money"
)

// FallbackDescription is stored when description generation fails.
const FallbackDescription = "Payment"

// UnknownDescription is stored on the terminal unknown outcome, when
// neither text nor vision extraction produced an amount.
const UnknownDescription = "could not extract information"

var (
	amountCharsRe = regexp.MustCompile(`[^0-9.,]`)
	// Tokens in the OCR text that indicate a direct transfer, used when
	// the model's answer matches neither label.
	transferTokens = []string{"pix", "ted", "doc", "transferencia", "transferência"}
)

// Fields is the structured outcome of inference for one attachment.
type Fields struct {
	Amount         string
	Classification ledger.Classification
	Description    string
}

// Engine runs the inference operations over one provider. A nil provider
// is valid and means every operation degrades immediately.
type Engine struct {
	provider Provider
	timeout  time.Duration
}

// NewEngine wires an engine. timeout bounds each individual LLM call.
func NewEngine(provider Provider, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Engine{provider: provider, timeout: timeout}
}

// Infer derives all fields for one attachment: the three text operations
// over ocrText, escalating to a vision call against imagePath when no
// amount was found. When the vision call cannot produce an amount either,
// the outcome is the terminal unknown record for this run.
func (e *Engine) Infer(ctx context.Context, ocrText, imagePath string) Fields {
	var f Fields
	if strings.TrimSpace(ocrText) != "" {
		f = Fields{
			Amount:         e.ExtractAmount(ctx, ocrText),
			Classification: e.Classify(ctx, ocrText),
			Description:    e.GenerateDescription(ctx, ocrText),
		}
		if f.Amount != "" {
			return f
		}
	}

	if imagePath != "" {
		if vf, ok := e.InferFromImage(ctx, imagePath); ok && vf.Amount != "" {
			return vf
		}
	}

	return Fields{
		Amount:         "",
		Classification: ledger.Unknown,
		Description:    UnknownDescription,
	}
}

// ExtractAmount asks for the receipt total. Returns the canonical decimal
// string, or "" when the model answered NONE, answered garbage, or the
// call failed.
func (e *Engine) ExtractAmount(ctx context.Context, text string) string {
	resp, err := e.generate(ctx, amountPrompt+text)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Err(err).Msg("amount extraction degraded to empty")
		return ""
	}
	return parseAmountAnswer(resp)
}

// GenerateDescription asks for a 3-5 word merchant/purpose summary,
// falling back to the fixed placeholder on any failure.
func (e *Engine) GenerateDescription(ctx context.Context, text string) string {
	resp, err := e.generate(ctx, descriptionPrompt+text)
	if err != nil {
		return FallbackDescription
	}
	desc := cleanLine(resp)
	if desc == "" {
		return FallbackDescription
	}
	if len(desc) > 80 {
		desc = desc[:80]
	}
	return desc
}

// Classify decides transfer vs payment. An ambiguous model answer falls
// back to a keyword scan of the OCR text; no transfer token means Payment.
func (e *Engine) Classify(ctx context.Context, text string) ledger.Classification {
	resp, err := e.generate(ctx, classifyPrompt+text)
	if err == nil {
		switch answer := strings.ToLower(cleanLine(resp)); {
		case strings.Contains(answer, "transferencia") || strings.Contains(answer, "transferência"):
			return ledger.Transfer
		case strings.Contains(answer, "pagamento"):
			return ledger.Payment
		}
	}
	return classifyByKeywords(text)
}

// InferFromImage is the vision escalation: the raw image plus the
// combined three-line prompt. ok is false when the call failed or the
// response had none of the expected labeled lines.
func (e *Engine) InferFromImage(ctx context.Context, imagePath string) (Fields, bool) {
	if e.provider == nil {
		return Fields{}, false
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("image", imagePath).Msg("vision fallback could not read image")
		return Fields{}, false
	}

	mimeType := mime.TypeByExtension(filepath.Ext(imagePath))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	resp, err := callWithRetry(ctx, e.timeout, func(callCtx context.Context) (string, error) {
		return e.provider.GenerateVision(callCtx, visionPrompt, data, mimeType)
	})
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Err(err).Msg("vision fallback call failed")
		return Fields{}, false
	}
	return parseVisionResponse(resp)
}

func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	if e.provider == nil {
		return "", ErrNoProvider
	}
	return callWithRetry(ctx, e.timeout, func(callCtx context.Context) (string, error) {
		return e.provider.GenerateText(callCtx, prompt)
	})
}

// parseAmountAnswer enforces the bare-number-or-NONE contract.
func parseAmountAnswer(resp string) string {
	answer := cleanLine(resp)
	if strings.EqualFold(answer, "none") {
		return ""
	}
	stripped := amountCharsRe.ReplaceAllString(answer, "")
	if stripped == "" || !money.Valid(stripped) {
		return ""
	}
	return money.Normalize(stripped)
}

// parseVisionResponse matches the three labeled lines by prefix. Missing
// or malformed lines yield empty fields; ok is false only when no label
// matched at all.
func parseVisionResponse(resp string) (Fields, bool) {
	var f Fields
	matched := false
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "VALOR:"):
			matched = true
			f.Amount = parseAmountAnswer(line[len("VALOR:"):])
		case strings.HasPrefix(upper, "TIPO:"):
			matched = true
			answer := strings.ToLower(strings.TrimSpace(line[len("TIPO:"):]))
			if strings.Contains(answer, "transfer") {
				f.Classification = ledger.Transfer
			} else {
				f.Classification = ledger.Payment
			}
		case strings.HasPrefix(upper, "DESCRICAO:") || strings.HasPrefix(upper, "DESCRIÇÃO:"):
			matched = true
			if desc := cleanLine(line[strings.Index(line, ":")+1:]); desc != "" {
				f.Description = desc
			}
		}
	}
	if f.Description == "" {
		f.Description = FallbackDescription
	}
	if f.Classification == "" {
		f.Classification = ledger.Payment
	}
	return f, matched
}

func classifyByKeywords(text string) ledger.Classification {
	lower := strings.ToLower(text)
	for _, token := range transferTokens {
		if containsToken(lower, token) {
			return ledger.Transfer
		}
	}
	return ledger.Payment
}

// containsToken matches whole words only, so "documento" does not read as
// a DOC transfer.
func containsToken(text, token string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], token)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(token)
		if (start == 0 || !isWordChar(text[start-1])) && (end == len(text) || !isWordChar(text[end])) {
			return true
		}
		idx = end
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 'A' && c <= 'Z'
}

// cleanLine strips code fences, quotes and surrounding noise from a
// single-field model answer, keeping the first non-empty line.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	for _, line := range strings.Split(s, "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"'`+"`")
		if line != "" {
			return line
		}
	}
	return ""
}
