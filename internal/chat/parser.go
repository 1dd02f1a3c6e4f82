// Package chat scans exported WhatsApp transcripts for attachment
// references. It yields, per attachment filename, the message instant and
// sender — the lookup table the ingestion pipeline keys on.
package chat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the chat-message instant format used across the
// ledger; it doubles as the natural key format for entries.
const TimestampLayout = "02/01/2006 15:04:05"

var (
	// [18/04/2025, 12:45:03] Ricardo: message text
	lineRe = regexp.MustCompile(`^\[(\d{2}/\d{2}/\d{4}), (\d{2}:\d{2}:\d{2})\] ([^:]+): (.*)$`)

	// The marker text is localized by WhatsApp; match the variants we see
	// in practice. <attached: x.jpg> / <anexado: x.jpg> / <anexo: x.jpg>
	attachRe = regexp.MustCompile(`<(?:attached|anexado|anexo):\s*([^>]+)>`)
)

// Attachment is one attachment reference found in the transcript.
type Attachment struct {
	Filename  string
	Sender    string
	Timestamp time.Time
}

// ParseFile reads a transcript file and returns its attachment references
// in transcript order.
func ParseFile(path string) ([]Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chat.ParseFile: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse scans transcript lines for attachment references. Lines that do
// not match the expected shape (continuation lines, system messages) are
// skipped, not errors.
func Parse(r io.Reader) ([]Attachment, error) {
	var out []Attachment

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "‎")

		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		am := attachRe.FindStringSubmatch(m[4])
		if am == nil {
			continue
		}

		ts, err := time.Parse(TimestampLayout, m[1]+" "+m[2])
		if err != nil {
			continue
		}

		out = append(out, Attachment{
			Filename:  strings.TrimSpace(strings.TrimPrefix(am[1], "‎")),
			Sender:    strings.TrimSpace(m[3]),
			Timestamp: ts,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("chat.Parse: %w", err)
	}
	return out, nil
}
