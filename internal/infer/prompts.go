package infer

// Prompt contracts are deliberately narrow: one field per call, strict
// single-line outputs. Keeping the contract this small is what makes
// parse failures cheap to absorb as "no data".

const amountPrompt = "The following text was extracted from a Brazilian payment receipt.\n" +
	"Return ONLY the total amount paid or transferred as a bare number\n" +
	"(digits and separators only, e.g. 29,90). No currency symbol, no words.\n" +
	"If no amount can be determined, return exactly NONE.\n\n" +
	"Receipt text:\n"

const descriptionPrompt = "The following text was extracted from a Brazilian payment receipt.\n" +
	"Summarize the merchant or purpose in 3 to 5 words.\n" +
	"Return ONLY the summary, no punctuation around it, no explanations.\n\n" +
	"Receipt text:\n"

const classifyPrompt = "The following text was extracted from a Brazilian payment receipt.\n" +
	"Decide whether it documents a direct transfer between two people\n" +
	"(PIX, TED, DOC) or a payment to a merchant.\n" +
	"Return exactly one word: transferencia or pagamento.\n\n" +
	"Receipt text:\n"

// visionPrompt is the combined escalation contract: three labeled lines,
// parsed by prefix, used when text-based extraction found no amount.
const visionPrompt = "This image is a Brazilian payment receipt.\n" +
	"Answer with EXACTLY three lines, nothing else:\n" +
	"VALOR: <the total amount as a bare number, or NONE>\n" +
	"TIPO: <transferencia or pagamento>\n" +
	"DESCRICAO: <merchant or purpose in 3 to 5 words>\n"
